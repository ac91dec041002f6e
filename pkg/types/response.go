// Package types holds the JSON envelopes shared by every admin endpoint.
package types

// SuccessEnvelope wraps every 2xx payload under a single data key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error shape. Details carries field-level
// validation context when present.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

package enums

import "fmt"

// OriginSource names the sales channel that produced an original redemption.
type OriginSource string

const (
	OriginSourcePayment OriginSource = "payment"
	OriginSourceCredit  OriginSource = "credit"
	OriginSourceXianyu  OriginSource = "xianyu"
	OriginSourceXhs     OriginSource = "xhs"
	OriginSourceManual  OriginSource = "manual"
)

var validOriginSources = []OriginSource{
	OriginSourcePayment,
	OriginSourceCredit,
	OriginSourceXianyu,
	OriginSourceXhs,
	OriginSourceManual,
}

// IsValid checks whether the given source matches the canonical enum.
func (s OriginSource) IsValid() bool {
	for _, candidate := range validOriginSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOriginSource converts raw strings into OriginSource.
func ParseOriginSource(value string) (OriginSource, error) {
	for _, candidate := range validOriginSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid origin source %q", value)
}

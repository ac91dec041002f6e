package controllers

import (
	"net/http"
	"strings"

	"github.com/harveywang/codedesk-backend/api/responses"
	"github.com/harveywang/codedesk-backend/api/validators"
	"github.com/harveywang/codedesk-backend/internal/recovery"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/harveywang/codedesk-backend/pkg/logger"
)

const maxRecoverBatch = 200

// RecoveryPreview reports what a one-click recovery run for a source would do.
func RecoveryPreview(svc recovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		days, err := validators.ParseQueryInt(r, "days", 0, 1, 90)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxRecoverBatch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.Preview(r.Context(), recovery.PreviewParams{
			Source: strings.TrimSpace(r.URL.Query().Get("source")),
			Days:   days,
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

type recoverRequest struct {
	OriginalCodeIDs []int64 `json:"originalCodeIds" validate:"required,min=1,max=200,dive,gt=0"`
}

// RecoveryRecover runs a recovery batch. The response is 200 with a per-item
// outcome array even when individual items fail; only request validation and
// infrastructure faults are non-200.
func RecoveryRecover(svc recovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		var req recoverRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.Recover(r.Context(), req.OriginalCodeIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"results": results})
	}
}

// RecoveryLogs returns the full recovery history for one original code,
// newest first.
func RecoveryLogs(svc recovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		originalCodeID, err := validators.ParseQueryInt64(r, "originalCodeId", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		logs, err := svc.Logs(r.Context(), originalCodeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"logs": logs})
	}
}

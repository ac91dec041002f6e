package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/harveywang/codedesk-backend/api/responses"
	"github.com/harveywang/codedesk-backend/api/validators"
	"github.com/harveywang/codedesk-backend/internal/accounts"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	"github.com/harveywang/codedesk-backend/pkg/pagination"
)

// BannedAccounts lists banned, unprocessed accounts with their recovery
// workload counts.
func BannedAccounts(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		days, err := validators.ParseQueryInt(r, "days", 0, 1, 90)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pendingOnly, err := validators.ParseQueryBool(r, "pendingOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sources, err := parseSources(r.URL.Query().Get("sources"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), accounts.ListParams{
			Search:      strings.TrimSpace(r.URL.Query().Get("search")),
			Days:        days,
			PendingOnly: pendingOnly,
			Sources:     sources,
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MarkAccountProcessed flips the ban-processed flag on one account.
func MarkAccountProcessed(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		accountID, err := parseAccountID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkProcessed(r.Context(), accountID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"accountId": accountID, "processed": true})
	}
}

// AccountRedeems lists one account's covered redemptions with derived state.
func AccountRedeems(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		accountID, err := parseAccountID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeems(r.Context(), accountID, accounts.RedeemsParams{
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseAccountID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "accountId"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	accountID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || accountID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid account id")
	}
	return accountID, nil
}

func parseSources(raw string) ([]enums.OriginSource, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	var sources []enums.OriginSource
	for _, part := range strings.Split(trimmed, ",") {
		source, err := enums.ParseOriginSource(strings.TrimSpace(part))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		sources = append(sources, source)
	}
	return sources, nil
}

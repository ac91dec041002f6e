package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harveywang/codedesk-backend/internal/accounts"
	"github.com/harveywang/codedesk-backend/internal/recovery"
	pkgauth "github.com/harveywang/codedesk-backend/pkg/auth"
	"github.com/harveywang/codedesk-backend/pkg/config"
	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	pkgredis "github.com/harveywang/codedesk-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubRecoveryService struct {
	preview func(ctx context.Context, params recovery.PreviewParams) (*recovery.PreviewResult, error)
	recover func(ctx context.Context, ids []int64) ([]recovery.RecoverResult, error)
}

func (s stubRecoveryService) ResolveOne(ctx context.Context, originalCodeID int64) (*recovery.EligibleRedeem, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "redemption not found")
}

func (s stubRecoveryService) Scope(ctx context.Context, params recovery.ScopeParams) ([]recovery.EligibleRedeem, error) {
	return nil, nil
}

func (s stubRecoveryService) Preview(ctx context.Context, params recovery.PreviewParams) (*recovery.PreviewResult, error) {
	if s.preview != nil {
		return s.preview(ctx, params)
	}
	return &recovery.PreviewResult{}, nil
}

func (s stubRecoveryService) Recover(ctx context.Context, originalCodeIDs []int64) ([]recovery.RecoverResult, error) {
	if s.recover != nil {
		return s.recover(ctx, originalCodeIDs)
	}
	return []recovery.RecoverResult{}, nil
}

func (s stubRecoveryService) Logs(ctx context.Context, originalCodeID int64) ([]models.RecoveryLog, error) {
	return []models.RecoveryLog{}, nil
}

type stubAccountsService struct {
	list func(ctx context.Context, params accounts.ListParams) (*accounts.ListResult, error)
}

func (s stubAccountsService) List(ctx context.Context, params accounts.ListParams) (*accounts.ListResult, error) {
	if s.list != nil {
		return s.list(ctx, params)
	}
	return &accounts.ListResult{}, nil
}

func (s stubAccountsService) MarkProcessed(ctx context.Context, accountID int64) error {
	return nil
}

func (s stubAccountsService) Redeems(ctx context.Context, accountID int64, params accounts.RedeemsParams) (*accounts.RedeemsResult, error) {
	return &accounts.RedeemsResult{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config, recoverySvc recovery.Service, accountsSvc accounts.Service) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		(*pkgredis.Client)(nil),
		nil,
		recoverySvc,
		accountsSvc,
	)
}

func buildToken(t *testing.T, cfg *config.Config, role string) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		AdminID:  1,
		Username: "ops",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig(), stubRecoveryService{}, stubAccountsService{})
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for live probe got %d", resp.Code)
	}
	if resp.Header().Get("X-CodeDesk-Env") != "test" {
		t.Fatalf("expected env header, got %q", resp.Header().Get("X-CodeDesk-Env"))
	}
}

func TestAdminGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), stubRecoveryService{}, stubAccountsService{})
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/account-recovery/banned-accounts", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubRecoveryService{}, stubAccountsService{})

	nonAdmin := httptest.NewRequest(http.MethodGet, "/api/admin/v1/account-recovery/banned-accounts", nil)
	nonAdmin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "viewer"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, nonAdmin)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/admin/v1/account-recovery/banned-accounts", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestPreviewPassesQueryParams(t *testing.T) {
	cfg := testConfig()
	var got recovery.PreviewParams
	svc := stubRecoveryService{
		preview: func(ctx context.Context, params recovery.PreviewParams) (*recovery.PreviewResult, error) {
			got = params
			return &recovery.PreviewResult{NeedCount: 3, AvailableCount: 2, Selected: []int64{11, 12}}, nil
		},
	}
	router := newTestRouter(cfg, svc, stubAccountsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/account-recovery/one-click/preview?source=payment&days=14&limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Source != "payment" || got.Days != 14 || got.Limit != 5 {
		t.Fatalf("unexpected preview params: %+v", got)
	}

	var payload struct {
		Data recovery.PreviewResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse preview response: %v", err)
	}
	if payload.Data.NeedCount != 3 || len(payload.Data.Selected) != 2 {
		t.Fatalf("unexpected preview payload: %+v", payload.Data)
	}
}

func TestRecoverValidatesBody(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubRecoveryService{}, stubAccountsService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/account-recovery/recover", strings.NewReader(`{"originalCodeIds":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch got %d", resp.Code)
	}
}

func TestRecoverReturnsPerItemResults(t *testing.T) {
	cfg := testConfig()
	svc := stubRecoveryService{
		recover: func(ctx context.Context, ids []int64) ([]recovery.RecoverResult, error) {
			results := make([]recovery.RecoverResult, 0, len(ids))
			for _, id := range ids {
				results = append(results, recovery.RecoverResult{OriginalCodeID: id, Outcome: enums.RecoveryOutcomeSuccess})
			}
			return results, nil
		},
	}
	router := newTestRouter(cfg, svc, stubAccountsService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/account-recovery/recover", strings.NewReader(`{"originalCodeIds":[5,6]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Data struct {
			Results []recovery.RecoverResult `json:"results"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse recover response: %v", err)
	}
	if len(payload.Data.Results) != 2 {
		t.Fatalf("expected 2 results got %d", len(payload.Data.Results))
	}
}

func TestLogsRequiresOriginalCodeID(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubRecoveryService{}, stubAccountsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/account-recovery/logs", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without originalCodeId got %d", resp.Code)
	}
}

func TestMarkProcessedValidatesAccountID(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubRecoveryService{}, stubAccountsService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/account-recovery/banned-accounts/abc/processed", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric account id got %d", resp.Code)
	}
}

func TestAccountRedeemsRouteResolves(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubRecoveryService{}, stubAccountsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/account-recovery/banned-accounts/42/redeems", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgauth.AdminRole))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for redeems got %d: %s", resp.Code, resp.Body.String())
	}
}

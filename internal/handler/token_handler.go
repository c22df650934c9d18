// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"token-issuer-service/internal/domain"
	"token-issuer-service/internal/metrics"
	"token-issuer-service/internal/middleware"
	"token-issuer-service/internal/usecase"
	"token-issuer-service/pkg/httputil"
)

// SeedSource は鍵生成用のランダムなシードを提供する。
type SeedSource interface {
	ReadSeed() ([]byte, error)
}

// SetupMetrics はセットアップ結果を記録する。
type SetupMetrics interface {
	SetupCompleted(result string)
}

// TokenHandler はキーストアとトークンのHTTPハンドラを提供する。
type TokenHandler struct {
	keystore *usecase.KeystoreService
	tokens   *usecase.TokenService
	seeds    SeedSource
	metrics  SetupMetrics
	now      func() time.Time
}

// NewTokenHandler は新しいTokenHandlerを生成する。now は検証・発行時の現在時刻を返す。
func NewTokenHandler(
	keystore *usecase.KeystoreService,
	tokens *usecase.TokenService,
	seeds SeedSource,
	m SetupMetrics,
	now func() time.Time,
) *TokenHandler {
	if now == nil {
		now = time.Now
	}
	return &TokenHandler{
		keystore: keystore,
		tokens:   tokens,
		seeds:    seeds,
		metrics:  m,
		now:      now,
	}
}

// SetupRequest はセットアップのリクエスト形式。
type SetupRequest struct {
	HoursUntilExpiration *int `json:"hours_until_expiration"`
}

// IssueResponse はトークン発行のレスポンス形式。
type IssueResponse struct {
	JWT string `json:"jwt"`
}

// ValidateRequest はトークン検証のリクエスト形式。
type ValidateRequest struct {
	JWT string `json:"jwt"`
}

// ValidateResponse はトークン検証のレスポンス形式。
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// PublicKeyResponse は公開鍵のレスポンス形式。
type PublicKeyResponse struct {
	PublicKey string `json:"pubkey"`
}

// HealthResponse はヘルスチェックのレスポンス形式。
type HealthResponse struct {
	Status      string `json:"status"`
	Initialized bool   `json:"initialized"`
}

// Setup は署名鍵を生成し、有効期間とともにキーストアを初期化する。
func (h *TokenHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.HoursUntilExpiration == nil || *req.HoursUntilExpiration < 0 || *req.HoursUntilExpiration > 255 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "hours_until_expiration must be an integer between 0 and 255")
		return
	}
	hours := uint8(*req.HoursUntilExpiration)

	seed, err := h.seeds.ReadSeed()
	if err == nil {
		err = h.keystore.Initialize(r.Context(), seed, domain.HoursToSeconds(hours))
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyInitialized):
			h.metrics.SetupCompleted(metrics.ResultConflict)
			middleware.WriteAuditLog(r.Context(), "SETUP", "", middleware.AuditFailed)
			httputil.Error(w, http.StatusConflict, "KEYSTORE_ALREADY_INITIALIZED", "keystore is already initialized")
		case errors.Is(err, domain.ErrKeygen):
			h.metrics.SetupCompleted(metrics.ResultError)
			middleware.WriteAuditLog(r.Context(), "SETUP", "", middleware.AuditFailed)
			slog.ErrorContext(r.Context(), "key generation failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "KEYGEN_ERROR", "failed to generate signing key")
		default:
			h.metrics.SetupCompleted(metrics.ResultError)
			middleware.WriteAuditLog(r.Context(), "SETUP", "", middleware.AuditFailed)
			slog.ErrorContext(r.Context(), "setup failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	h.metrics.SetupCompleted(metrics.ResultSuccess)
	middleware.WriteAuditLog(r.Context(), "SETUP", "", middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, struct{}{})
}

// IssueToken は認証済みの呼び出し元に対してトークンを発行する。
func (h *TokenHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "caller identity is required")
		return
	}

	token, err := h.tokens.Issue(r.Context(), subject, h.now())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ISSUE_TOKEN", subject, middleware.AuditFailed)
		switch {
		case errors.Is(err, domain.ErrPolicyNotFound), errors.Is(err, domain.ErrKeyNotFound):
			httputil.Error(w, http.StatusNotFound, "KEYSTORE_NOT_INITIALIZED", "keystore is not initialized")
		case errors.Is(err, domain.ErrProvision):
			httputil.Error(w, http.StatusInternalServerError, "PROVISION_ERROR", "failed to build token")
		default:
			slog.ErrorContext(r.Context(), "token issuance failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	middleware.WriteAuditLog(r.Context(), "ISSUE_TOKEN", subject, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, IssueResponse{JWT: token})
}

// ValidateToken はトークンの有効性を返す。
func (h *TokenHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	valid, err := h.tokens.Validate(r.Context(), req.JWT, h.now())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VALIDATE_TOKEN", "", middleware.AuditFailed)
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEYSTORE_NOT_INITIALIZED", "keystore is not initialized")
			return
		}
		slog.ErrorContext(r.Context(), "token validation failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "VALIDATE_TOKEN", "", middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, ValidateResponse{Valid: valid})
}

// GetPublicKey は署名検証用の公開鍵を返す。
func (h *TokenHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	pub, err := h.tokens.PublicKey(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEYSTORE_NOT_INITIALIZED", "keystore is not initialized")
			return
		}
		slog.ErrorContext(r.Context(), "loading public key failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	httputil.JSON(w, http.StatusOK, PublicKeyResponse{PublicKey: pub})
}

// Health はストアへの疎通とキーストアの初期化状態を返す。
func (h *TokenHandler) Health(w http.ResponseWriter, r *http.Request) {
	initialized, err := h.keystore.Initialized(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "health check failed", "error", err)
		httputil.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	httputil.JSON(w, http.StatusOK, HealthResponse{Status: "ok", Initialized: initialized})
}

package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// HeaderAPIKey is the request header carrying the raw API key.
const HeaderAPIKey = "api_key"

var errUnauthorized = errors.New("unauthorized")

type apiKeyCtx struct{}

// APIKeyFromContext returns the key that authenticated the request.
func APIKeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyCtx{}).(*auth.APIKeyInfo)
	return info, ok
}

// SecurityHandler authenticates requests by the HMAC-SHA256 of their API key.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
	scope   string
}

// NewSecurityHandler creates a SecurityHandler that requires scope.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte, scope string) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
		scope:   scope,
	}
}

// Authenticate resolves a raw key to its stored record.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hash := auth.HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, auth.ErrKeyNotFound) {
			return nil, errors.Wrap(err, "find api key")
		}
		return nil, errUnauthorized
	}

	// The row was found by hash; compare again in constant time in case the
	// store matched loosely.
	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errUnauthorized
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, stored) != 1 {
		return nil, errUnauthorized
	}
	if s.scope != "" && !info.HasScope(s.scope) {
		return nil, errUnauthorized
	}
	return info, nil
}

// Middleware rejects requests without a valid key with 401.
func (s *SecurityHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
		switch {
		case errors.Is(err, errUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(r.Context()).Error("Authenticate", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyCtx{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

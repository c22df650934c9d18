package middleware

import (
	"context"
	"net/http"
	"strings"

	"token-issuer-service/pkg/httputil"
)

type identityKey struct{}

// CallerIdentity は上流ゲートウェイが付与した認証済み呼び出し元をヘッダーから取り出し、
// コンテキストに格納する。ヘッダーが無い場合は 401 を返す。
func CallerIdentity(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := strings.TrimSpace(r.Header.Get(header))
			if identity == "" {
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "caller identity is required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity は呼び出し元をコンテキストに格納する。
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext はコンテキストから呼び出し元を取り出す。
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey{}).(string)
	return identity, ok && identity != ""
}

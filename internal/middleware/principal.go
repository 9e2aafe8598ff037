package middleware

import (
	"context"
	"net/http"
	"regexp"
)

// AnonymousPrincipal is used when a request does not name its caller.
const AnonymousPrincipal = "anonymous"

type principalKey struct{}

var validPrincipal = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)

// Principal records the caller named by the X-Principal header. The value is
// informational only: it is attached to triggered and cancelled runs and is
// not authenticated.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("X-Principal")
		if !validPrincipal.MatchString(name) {
			name = AnonymousPrincipal
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), name)))
	})
}

// WithPrincipal returns a copy of ctx carrying the principal name.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFromContext returns the principal name, or AnonymousPrincipal.
func PrincipalFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(principalKey{}).(string); ok && name != "" {
		return name
	}
	return AnonymousPrincipal
}

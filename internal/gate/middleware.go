package gate

import (
	"encoding/json"
	"net/http"

	"rategate/internal/auth"
)

// PrincipalFunc extracts the authenticated principal from a request, or nil
// for anonymous callers.
type PrincipalFunc func(r *http.Request) *auth.Principal

// Middleware wraps an http.Handler with the decision gate for in-process Go
// hosts. Denied requests get the structured 429 body; allowed requests carry
// the informational headers and decision metadata in their context.
func Middleware(g *Gate, principalFn PrincipalFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := Request{
				Path:       r.URL.Path,
				Method:     r.Method,
				Headers:    r.Header,
				RemoteAddr: r.RemoteAddr,
			}
			if principalFn != nil {
				req.Principal = principalFn(r)
			}

			decision := g.Decide(r.Context(), req)
			ApplyHeaders(w, decision)

			if !decision.Allowed {
				WriteDenial(w, decision.Denial)
				return
			}

			if decision.LimiterConsulted() {
				meta := &Metadata{
					Key:    decision.Key,
					Type:   decision.Config.Type,
					Result: decision.Result,
					Config: decision.Config,
				}
				r = r.WithContext(NewContext(r.Context(), meta))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ApplyHeaders copies a decision's rate-limit headers onto a response.
func ApplyHeaders(w http.ResponseWriter, d Decision) {
	for name, values := range d.Headers() {
		for _, value := range values {
			w.Header().Set(name, value)
		}
	}
}

// WriteDenial writes the structured denial body.
func WriteDenial(w http.ResponseWriter, denial *Denial) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(denial.StatusCode)
	json.NewEncoder(w).Encode(denial)
}

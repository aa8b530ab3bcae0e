package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// Identity is established by the gateway in front of this service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

// RequireActor rejects requests without a caller id.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderUserID})
			return
		}
		actor := orders.Actor{ID: id, Role: strings.TrimSpace(r.Header.Get(HeaderUserRole))}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) orders.Actor {
	a, _ := ctx.Value(actorKey{}).(orders.Actor)
	return a
}

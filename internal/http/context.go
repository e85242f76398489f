package http

import (
	"context"
	"net/http"
	"strings"
)

// CustomerHeader carries the identity of the customer making a request.
// Authentication happens upstream; the service only records the id.
const CustomerHeader = "X-Customer-ID"

type contextKey string

const customerContextKey contextKey = "customer_id"

// ContextWithCustomer returns a derived context carrying the customer id.
func ContextWithCustomer(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, customerContextKey, customerID)
}

// CustomerFromContext extracts the customer id if one was attached.
func CustomerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(customerContextKey).(string)
	return id, ok && id != ""
}

// CustomerIdentity copies the CustomerHeader into the request context.
func CustomerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(CustomerHeader)); id != "" {
			r = r.WithContext(ContextWithCustomer(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

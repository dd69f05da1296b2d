package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	companyIDKey = contextKey{"company_id"}
	roleKey      = contextKey{"role"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithIdentity returns a context with user_id, company_id, and role set from a verified access token.
// Handlers read these via GetUserID, GetCompanyID, GetRole.
func WithIdentity(ctx context.Context, userID, companyID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, companyIDKey, companyID)
	ctx = context.WithValue(ctx, roleKey, role)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetCompanyID returns the company_id from context and true if set; otherwise "", false.
func GetCompanyID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(companyIDKey).(string)
	return v, ok
}

// GetRole returns the role claim from context and true if set; otherwise "", false.
func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}

package audit

import (
	"strings"
	"unicode"
)

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// Admin methods audited against the affected user rather than the service.
const revokeUserSessions = "/tenantidentity.auth.v1.AuthService/RevokeUserSessions"

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /tenantidentity.auth.v1.AuthService/LoginWithCompany).
// Action is the snake_case method name; resource is the lower-cased service name without the "Service" suffix.
func ParseFullMethod(fullMethod string) ActionResource {
	if fullMethod == revokeUserSessions {
		return ActionResource{Action: "sessions_revoked", Resource: "user"}
	}
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: snakeCase(method), Resource: "unknown"}
	}
	return ActionResource{Action: snakeCase(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return snakeCase(s)
}

// snakeCase converts CamelCase to snake_case: LoginWithCompany -> login_with_company.
func snakeCase(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

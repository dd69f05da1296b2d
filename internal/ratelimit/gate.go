package ratelimit

import (
	"context"
	"log"
	"net/netip"
	"strings"
	"time"
)

// Store is the bucket backend the gate consults.
type Store interface {
	TryConsume(ctx context.Context, key string, limit Limit) (Decision, error)
}

// Policy is the per-operation configuration.
type Policy struct {
	Default     Limit
	Allowlisted Limit
	// FailOpen allows the request when the store cannot be consulted.
	FailOpen bool
}

// Caller identifies who is spending tokens. UserID is set once the caller is authenticated.
type Caller struct {
	IP     string
	UserID string
}

// failClosedRetry is the retry hint given when the store is down and the operation fails closed.
const failClosedRetry = time.Second

// Operations with their own policies.
const (
	OpRequestTicket         = "RequestTicket"
	OpLoginWithCompany      = "LoginWithCompany"
	OpRefresh               = "Refresh"
	OpLogout                = "Logout"
	OpRequestPasswordReset  = "RequestPasswordReset"
	OpCompletePasswordReset = "CompletePasswordReset"
	OpRevokeUserSessions    = "RevokeUserSessions"
	OpHealthCheck           = "Check"
	OpHealthWatch           = "Watch"
)

// DefaultPolicies returns the policy table used by the server. Credential and reset operations
// fail closed; token upkeep and health checks fail open.
func DefaultPolicies(base Limit, allowlistMultiplier int64) map[string]Policy {
	closed := Policy{Default: base, Allowlisted: base.Scale(allowlistMultiplier)}
	open := closed
	open.FailOpen = true
	return map[string]Policy{
		OpRequestTicket:         closed,
		OpLoginWithCompany:      closed,
		OpRequestPasswordReset:  closed,
		OpCompletePasswordReset: closed,
		OpRevokeUserSessions:    closed,
		OpRefresh:               open,
		OpLogout:                open,
		OpHealthCheck:           open,
		OpHealthWatch:           open,
	}
}

// Gate applies per-operation policies to callers.
type Gate struct {
	store     Store
	policies  map[string]Policy
	fallback  Policy
	allowlist []netip.Prefix
	timeout   time.Duration
}

// NewGate returns a gate over store. Operations missing from policies use fallback.
// timeout bounds each store call; zero means no extra bound.
func NewGate(store Store, policies map[string]Policy, fallback Policy, timeout time.Duration) *Gate {
	return &Gate{store: store, policies: policies, fallback: fallback, timeout: timeout}
}

// WithAllowlist gives the listed IPs and CIDRs the allowlisted limit. Unparseable entries are logged and skipped.
func (g *Gate) WithAllowlist(entries []string) *Gate {
	for _, e := range entries {
		p, err := ParsePrefix(e)
		if err != nil {
			log.Printf("ratelimit: ignoring allowlist entry %q: %v", e, err)
			continue
		}
		g.allowlist = append(g.allowlist, p)
	}
	return g
}

// ParsePrefix parses a CIDR or a bare IP, which becomes a single-address prefix.
func ParsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	a = a.Unmap()
	return netip.PrefixFrom(a, a.BitLen()), nil
}

// Allowlisted reports whether ip falls inside an allowlisted range.
func (g *Gate) Allowlisted(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range g.allowlist {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Key returns the bucket key for op and caller.
func Key(op string, c Caller) string {
	if c.UserID != "" {
		return "rl:" + op + ":user:" + c.UserID
	}
	ip := c.IP
	if ip == "" {
		ip = "unknown"
	}
	return "rl:" + op + ":ip:" + ip
}

// Check spends one token for caller on op. Store failures never surface as errors: the
// operation's FailOpen setting decides, and the decision is marked Degraded.
func (g *Gate) Check(ctx context.Context, op string, c Caller) Decision {
	policy, ok := g.policies[op]
	if !ok {
		policy = g.fallback
	}
	limit := policy.Default
	if g.Allowlisted(c.IP) && policy.Allowlisted.Valid() {
		limit = policy.Allowlisted
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	d, err := g.store.TryConsume(ctx, Key(op, c), limit)
	if err != nil {
		log.Printf("ratelimit: %s: %v (fail_open=%t)", op, err, policy.FailOpen)
		if policy.FailOpen {
			return Decision{Allowed: true, Degraded: true}
		}
		return Decision{Allowed: false, RetryAfter: failClosedRetry, Degraded: true}
	}
	return d
}

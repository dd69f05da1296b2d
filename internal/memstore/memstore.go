// Package memstore provides in-memory repositories with the same conditional-update
// semantics as the Postgres ones. Each repository guards its rows with one mutex, so a
// conditional update is atomic exactly like the single SQL statement it mirrors.
//
// Only tests import this package. Service tests therefore exercise these mirrors, not the
// conditional SQL in the */repository/postgres.go files (ticket Consume, reset MarkUsed and
// ReplaceOutstanding, refresh Revoke and the revoke-all statements). Changes to those
// statements must be checked against a real Postgres.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	companydomain "tenant-identity/backend/internal/company/domain"
	membershipdomain "tenant-identity/backend/internal/membership/domain"
	resetdomain "tenant-identity/backend/internal/passwordreset/domain"
	sessiondomain "tenant-identity/backend/internal/session/domain"
	ticketdomain "tenant-identity/backend/internal/ticket/domain"
	userdomain "tenant-identity/backend/internal/user/domain"
)

// ErrDuplicate mirrors a unique constraint violation.
var ErrDuplicate = errors.New("memstore: duplicate key")

type Users struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]string
	// Err, when set, is returned by every call.
	Err error
}

func NewUsers() *Users {
	return &Users{byID: map[string]*userdomain.User{}, byEmail: map[string]string{}}
}

func (r *Users) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return copyOf(r.byID[id]), nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return copyOf(r.byID[r.byEmail[userdomain.NormalizeEmail(email)]]), nil
}

func (r *Users) Create(ctx context.Context, u *userdomain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	email := userdomain.NormalizeEmail(u.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byID[u.ID]; ok {
		return ErrDuplicate
	}
	c := *u
	c.Email = email
	r.byID[u.ID] = &c
	r.byEmail[email] = u.ID
	return nil
}

func (r *Users) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	u, ok := r.byID[userID]
	if !ok {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	return true, nil
}

type Companies struct {
	mu   sync.Mutex
	byID map[string]*companydomain.Company
}

func NewCompanies() *Companies {
	return &Companies{byID: map[string]*companydomain.Company{}}
}

func (r *Companies) GetByID(ctx context.Context, id string) (*companydomain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOf(r.byID[id]), nil
}

func (r *Companies) Create(ctx context.Context, c *companydomain.Company) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; ok {
		return ErrDuplicate
	}
	r.byID[c.ID] = copyOf(c)
	return nil
}

type Memberships struct {
	mu   sync.Mutex
	rows []*membershipdomain.Membership
}

func NewMemberships() *Memberships {
	return &Memberships{}
}

func (r *Memberships) GetByUserAndCompany(ctx context.Context, userID, companyID string) (*membershipdomain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.UserID == userID && m.CompanyID == companyID {
			return copyOf(m), nil
		}
	}
	return nil, nil
}

func (r *Memberships) ListByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*membershipdomain.Membership
	for _, m := range r.rows {
		if m.UserID == userID {
			out = append(out, copyOf(m))
		}
	}
	return out, nil
}

func (r *Memberships) Create(ctx context.Context, m *membershipdomain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.UserID == m.UserID && existing.CompanyID == m.CompanyID {
			return ErrDuplicate
		}
	}
	c := copyOf(m)
	if c.Status == "" {
		c.Status = membershipdomain.StatusActive
	}
	r.rows = append(r.rows, c)
	return nil
}

func (r *Memberships) RevokeByUserAndCompany(ctx context.Context, userID, companyID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.UserID == userID && m.CompanyID == companyID && m.Status != membershipdomain.StatusRevoked {
			m.Status = membershipdomain.StatusRevoked
			return true, nil
		}
	}
	return false, nil
}

type Tickets struct {
	mu   sync.Mutex
	byID map[string]*ticketdomain.LoginTicket
	Err  error
}

func NewTickets() *Tickets {
	return &Tickets{byID: map[string]*ticketdomain.LoginTicket{}}
}

func (r *Tickets) Create(ctx context.Context, t *ticketdomain.LoginTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byID[t.ID]; ok {
		return ErrDuplicate
	}
	r.byID[t.ID] = copyOf(t)
	return nil
}

func (r *Tickets) Consume(ctx context.Context, id, email string, now time.Time) (*ticketdomain.LoginTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.byID[id]
	if !ok || t.Email != email || t.Used || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	t.Used = true
	usedAt := now
	t.UsedAt = &usedAt
	return copyOf(t), nil
}

func (r *Tickets) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.byID {
		if t.ExpiresAt.Before(before) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the stored ticket, for assertions.
func (r *Tickets) Get(id string) *ticketdomain.LoginTicket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOf(r.byID[id])
}

type RefreshTokens struct {
	mu   sync.Mutex
	byID map[string]*sessiondomain.RefreshToken
	Err  error
}

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{byID: map[string]*sessiondomain.RefreshToken{}}
}

func (r *RefreshTokens) Create(ctx context.Context, t *sessiondomain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, existing := range r.byID {
		if existing.TokenHash == t.TokenHash {
			return ErrDuplicate
		}
	}
	r.byID[t.ID] = copyOf(t)
	return nil
}

func (r *RefreshTokens) GetByHash(ctx context.Context, tokenHash string) (*sessiondomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, t := range r.byID {
		if t.TokenHash == tokenHash {
			return copyOf(t), nil
		}
	}
	return nil, nil
}

func (r *RefreshTokens) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	t, ok := r.byID[id]
	if !ok || t.Revoked {
		return false, nil
	}
	revoke(t, at)
	return true, nil
}

func (r *RefreshTokens) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for _, t := range r.byID {
		if t.UserID == userID && !t.Revoked {
			revoke(t, at)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokens) RevokeAllForUserInCompany(ctx context.Context, userID, companyID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for _, t := range r.byID {
		if t.UserID == userID && t.CompanyID == companyID && !t.Revoked {
			revoke(t, at)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.byID {
		if t.ExpiresAt.Before(before) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// CountActive returns the number of the user's tokens that are unrevoked and unexpired at now.
func (r *RefreshTokens) CountActive(userID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.byID {
		if t.UserID == userID && t.Active(now) {
			n++
		}
	}
	return n
}

// Hashes returns every stored token hash, for assertions that no plaintext is persisted.
func (r *RefreshTokens) Hashes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t.TokenHash)
	}
	return out
}

func revoke(t *sessiondomain.RefreshToken, at time.Time) {
	t.Revoked = true
	revokedAt := at
	t.RevokedAt = &revokedAt
}

type ResetRequests struct {
	mu   sync.Mutex
	byID map[string]*resetdomain.Request
	Err  error
}

func NewResetRequests() *ResetRequests {
	return &ResetRequests{byID: map[string]*resetdomain.Request{}}
}

func (r *ResetRequests) GetByHash(ctx context.Context, tokenHash string) (*resetdomain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, req := range r.byID {
		if req.TokenHash == tokenHash {
			return copyOf(req), nil
		}
	}
	return nil, nil
}

func (r *ResetRequests) ReplaceOutstanding(ctx context.Context, req *resetdomain.Request) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	for _, existing := range r.byID {
		if existing.TokenHash == req.TokenHash {
			return 0, ErrDuplicate
		}
	}
	var n int64
	for _, existing := range r.byID {
		if existing.UserID == req.UserID && existing.Status == resetdomain.StatusRequested {
			existing.Status = resetdomain.StatusRevoked
			n++
		}
	}
	r.byID[req.ID] = copyOf(req)
	return n, nil
}

func (r *ResetRequests) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	req, ok := r.byID[id]
	if !ok || req.Status != resetdomain.StatusRequested || !req.ExpiresAt.After(now) {
		return false, nil
	}
	req.Status = resetdomain.StatusUsed
	usedAt := now
	req.UsedAt = &usedAt
	return true, nil
}

func (r *ResetRequests) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	req, ok := r.byID[id]
	if !ok || req.Status != resetdomain.StatusRequested || req.ExpiresAt.After(now) {
		return false, nil
	}
	req.Status = resetdomain.StatusExpired
	return true, nil
}

func (r *ResetRequests) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.byID {
		if req.Status == resetdomain.StatusRequested && !req.ExpiresAt.After(now) {
			req.Status = resetdomain.StatusExpired
			n++
		}
	}
	return n, nil
}

// ByUser returns copies of the user's requests, for assertions.
func (r *ResetRequests) ByUser(userID string) []*resetdomain.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*resetdomain.Request
	for _, req := range r.byID {
		if req.UserID == userID {
			out = append(out, copyOf(req))
		}
	}
	return out
}

func copyOf[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

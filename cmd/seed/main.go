// seed inserts development sample data for local testing. Run via go run ./cmd/seed after migrating.
// Idempotent: skips inserts if the dev admin (a@x.com) already exists.
package main

import (
	"context"
	"log"
	"os"
	"time"

	companydomain "tenant-identity/backend/internal/company/domain"
	companyrepo "tenant-identity/backend/internal/company/repository"
	"tenant-identity/backend/internal/config"
	"tenant-identity/backend/internal/db"
	membershipdomain "tenant-identity/backend/internal/membership/domain"
	membershiprepo "tenant-identity/backend/internal/membership/repository"
	"tenant-identity/backend/internal/security"
	userdomain "tenant-identity/backend/internal/user/domain"
	userrepo "tenant-identity/backend/internal/user/repository"
)

const (
	devAdminEmail    = "a@x.com"
	devMemberEmail   = "member@x.com"
	devPassword      = "pw123"
	devAdminID       = "dev-user-001"
	devMemberID      = "dev-user-002"
	devCompanyID     = "C1"
	devCompany2ID    = "C2"
	devMembershipID  = "dev-membership-001"
	devMembership2ID = "dev-membership-002"
	devMembership3ID = "dev-membership-003"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	companies := companyrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, devAdminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", devAdminEmail)
		os.Exit(0)
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()

	for _, u := range []*userdomain.User{
		{ID: devAdminID, Email: devAdminEmail, Name: "Dev Admin", PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
		{ID: devMemberID, Email: devMemberEmail, Name: "Dev Member", PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
	} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", u.Email, err)
		}
	}
	for _, c := range []*companydomain.Company{
		{ID: devCompanyID, Name: "Dev Company", CreatedAt: now},
		{ID: devCompany2ID, Name: "Second Company", CreatedAt: now},
	} {
		if err := companies.Create(ctx, c); err != nil {
			log.Fatalf("create company %s: %v", c.ID, err)
		}
	}
	for _, m := range []*membershipdomain.Membership{
		{ID: devMembershipID, UserID: devAdminID, CompanyID: devCompanyID, Role: membershipdomain.RoleAdmin, CreatedAt: now},
		{ID: devMembership2ID, UserID: devMemberID, CompanyID: devCompanyID, Role: membershipdomain.RoleMember, CreatedAt: now},
		{ID: devMembership3ID, UserID: devMemberID, CompanyID: devCompany2ID, Role: membershipdomain.RoleMember, CreatedAt: now},
	} {
		if err := memberships.Create(ctx, m); err != nil {
			log.Fatalf("create membership %s: %v", m.ID, err)
		}
	}

	log.Printf("Seed applied: %s / %s is ADMIN of %s; %s is MEMBER of %s and %s.",
		devAdminEmail, devPassword, devCompanyID, devMemberEmail, devCompanyID, devCompany2ID)
}

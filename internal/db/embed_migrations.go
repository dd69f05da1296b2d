package db

import "embed"

// MigrationFS embeds SQL migration files for the identity schema (users, companies, memberships, tickets, refresh tokens, reset requests, audit).
// Used by the migrate runner (cmd/migrate and cmd/seed) to apply migrations.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

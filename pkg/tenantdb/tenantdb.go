// Package tenantdb provisions and deprovisions per-owner MariaDB databases,
// users, and grants on the tenant database server — the server that hosts
// each deployed project's own persistent storage, distinct from the
// control-plane store in pkg/storage.
package tenantdb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/log"
	"github.com/cuemby/hangar/pkg/validate"
)

const dbPrefix = "hangardb"

const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const passwordLength = 24

// Provisioner creates and drops databases, users, and grants on the tenant
// MariaDB server.
type Provisioner struct {
	db *sql.DB
}

// New wraps an open connection pool to the tenant MariaDB server.
func New(db *sql.DB) *Provisioner {
	return &Provisioner{db: db}
}

// DatabaseName returns the deterministic per-owner database name.
func DatabaseName(ownerLogin string) string {
	return fmt.Sprintf("%s_%s", dbPrefix, ownerLogin)
}

// GeneratePassword returns a random alphanumeric password suitable for a
// freshly provisioned tenant-database user.
func GeneratePassword() (string, error) {
	b := make([]byte, passwordLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	out := make([]byte, passwordLength)
	for i, v := range b {
		out[i] = passwordAlphabet[int(v)%len(passwordAlphabet)]
	}
	return string(out), nil
}

// Provision creates dbName, a user named username with the given password,
// and grants it the standard DML/DDL privilege set scoped to that database.
// On any failure after the database was created, it attempts to tear down
// what was created so far before returning.
func (p *Provisioner) Provision(ctx context.Context, dbName, username, password string) error {
	if err := validate.TenantDBIdentifier(dbName); err != nil {
		return apperr.BadRequest("Invalid identifier")
	}
	if err := validate.TenantDBIdentifier(username); err != nil {
		return apperr.BadRequest("Invalid identifier")
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to acquire MariaDB connection")
		return apperr.Database(apperr.ProvisioningFailed, "Failed to provision the database.")
	}
	defer conn.Close()

	createDB := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci", dbName)
	if _, err := conn.ExecContext(ctx, createDB); err != nil {
		log.Logger.Error().Err(err).Str("database", dbName).Msg("failed to create tenant database")
		return apperr.Database(apperr.ProvisioningFailed, "Failed to provision the database.")
	}

	escapedPassword := strings.ReplaceAll(password, "'", "\\'")
	createUser := fmt.Sprintf("CREATE USER `%s`@'%%' IDENTIFIED BY '%s'", username, escapedPassword)
	if _, err := conn.ExecContext(ctx, createUser); err != nil {
		log.Logger.Error().Str("username", username).Msg("failed to create tenant user (details hidden for security)")
		p.rollback(ctx, dbName, username)
		return apperr.Database(apperr.ProvisioningFailed, "Failed to provision the database.")
	}

	grant := fmt.Sprintf(
		"GRANT SELECT, INSERT, UPDATE, DELETE, CREATE, DROP, INDEX, ALTER, CREATE TEMPORARY TABLES, LOCK TABLES ON `%s`.* TO `%s`@'%%'",
		dbName, username,
	)
	if _, err := conn.ExecContext(ctx, grant); err != nil {
		log.Logger.Error().Err(err).Str("database", dbName).Str("username", username).Msg("failed to grant tenant privileges")
		p.rollback(ctx, dbName, username)
		return apperr.Database(apperr.ProvisioningFailed, "Failed to provision the database.")
	}

	if _, err := conn.ExecContext(ctx, "FLUSH PRIVILEGES"); err != nil {
		log.Logger.Error().Err(err).Msg("failed to flush privileges")
		p.rollback(ctx, dbName, username)
		return apperr.Database(apperr.ProvisioningFailed, "Failed to provision the database.")
	}

	return nil
}

// Deprovision drops the database and its user. Used both for explicit
// deprovisioning and as the rollback path after a failed Provision or a
// failed control-plane commit.
func (p *Provisioner) Deprovision(ctx context.Context, dbName, username string) error {
	if err := validate.TenantDBIdentifier(dbName); err != nil {
		return apperr.BadRequest("Invalid identifier")
	}
	if err := validate.TenantDBIdentifier(username); err != nil {
		return apperr.BadRequest("Invalid identifier")
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return apperr.Database(apperr.DeprovisioningFailed, "Failed to deprovision the database.")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", dbName)); err != nil {
		log.Logger.Error().Err(err).Str("database", dbName).Msg("failed to drop tenant database")
		return apperr.Database(apperr.DeprovisioningFailed, "Failed to deprovision the database.")
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP USER IF EXISTS `%s`@'%%'", username)); err != nil {
		log.Logger.Error().Err(err).Str("username", username).Msg("failed to drop tenant user")
		return apperr.Database(apperr.DeprovisioningFailed, "Failed to deprovision the database.")
	}

	return nil
}

// rollback is a best-effort deprovision used when a later provisioning
// step fails; it logs its own errors instead of returning them since the
// caller already has a more specific error to surface.
func (p *Provisioner) rollback(ctx context.Context, dbName, username string) {
	if err := p.Deprovision(ctx, dbName, username); err != nil {
		log.Logger.Error().Err(err).Str("database", dbName).Msg("failed to roll back partially provisioned tenant database")
	}
}

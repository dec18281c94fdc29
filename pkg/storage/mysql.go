package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/types"
)

// MySQLStore implements Store over the control-plane MariaDB/MySQL
// database. Env vars are persisted as a JSON object of already-encrypted
// values; pkg/security never touches the store directly.
type MySQLStore struct {
	db *sql.DB
}

// Open connects to dsn, applies the control-plane schema, and returns a
// ready-to-use Store.
func Open(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open control-plane store: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping control-plane store: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(63) NOT NULL UNIQUE,
			owner VARCHAR(255) NOT NULL,
			container_name VARCHAR(255) NOT NULL UNIQUE,
			source_kind VARCHAR(16) NOT NULL,
			source_url TEXT NOT NULL,
			source_branch VARCHAR(255) NOT NULL DEFAULT '',
			source_root_dir VARCHAR(255) NOT NULL DEFAULT '',
			deployed_image_tag VARCHAR(255) NOT NULL DEFAULT '',
			deployed_image_digest VARCHAR(255) NOT NULL DEFAULT '',
			env_vars JSON NULL,
			persistent_volume_path VARCHAR(255) NOT NULL DEFAULT '',
			volume_name VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			UNIQUE KEY uniq_owner (owner)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS project_participants (
			project_id BIGINT NOT NULL,
			participant_id VARCHAR(255) NOT NULL,
			PRIMARY KEY (project_id, participant_id),
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS databases (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			owner_login VARCHAR(255) NOT NULL UNIQUE,
			database_name VARCHAR(255) NOT NULL,
			username VARCHAR(255) NOT NULL,
			encrypted_password TEXT NOT NULL,
			project_id BIGINT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE SET NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate control-plane store: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) ProjectNameTaken(ctx context.Context, name string) (bool, error) {
	return s.existsQuery(ctx, "SELECT COUNT(*) FROM projects WHERE name = ?", name)
}

func (s *MySQLStore) OwnerHasProject(ctx context.Context, owner string) (bool, error) {
	return s.existsQuery(ctx, "SELECT COUNT(*) FROM projects WHERE owner = ?", owner)
}

func (s *MySQLStore) OwnerHasDatabase(ctx context.Context, owner string) (bool, error) {
	return s.existsQuery(ctx, "SELECT COUNT(*) FROM databases WHERE owner_login = ?", owner)
}

func (s *MySQLStore) existsQuery(ctx context.Context, query, arg string) (bool, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return false, apperr.Internal(err)
	}
	return count > 0, nil
}

func (s *MySQLStore) CreateProject(ctx context.Context, p *types.Project) (int64, error) {
	return createProject(ctx, s.db, p)
}

func createProject(ctx context.Context, exec sqlExecutor, p *types.Project) (int64, error) {
	envVarsJSON, err := marshalEnvVars(p.EnvVars)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	res, err := exec.ExecContext(ctx, `
		INSERT INTO projects (
			name, owner, container_name, source_kind, source_url, source_branch,
			source_root_dir, deployed_image_tag, deployed_image_digest, env_vars,
			persistent_volume_path, volume_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Owner, p.ContainerName, string(p.Source.Kind), p.Source.URL, p.Source.Branch,
		p.Source.RootDir, p.DeployedImageTag, p.DeployedImageDigest, envVarsJSON,
		p.PersistentVolumePath, p.VolumeName, p.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, apperr.Project(apperr.ProjectNameTaken, "This project name is already taken.")
		}
		return 0, apperr.Internal(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Internal(err)
	}
	p.ID = id
	return id, nil
}

func (s *MySQLStore) GetProjectByID(ctx context.Context, id int64, caller string, callerIsAdmin bool) (*types.Project, error) {
	p, err := scanProjectRow(s.db.QueryRowContext(ctx, projectSelectColumns+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if !callerIsAdmin && p.Owner != caller {
		isParticipant, err := s.isParticipant(ctx, id, caller)
		if err != nil {
			return nil, err
		}
		if !isParticipant {
			return nil, apperr.NotFound(fmt.Sprintf("Project %d not found or you don't have access.", id))
		}
	}
	return p, nil
}

func (s *MySQLStore) isParticipant(ctx context.Context, projectID int64, participant string) (bool, error) {
	return s.existsQueryInt(ctx, "SELECT COUNT(*) FROM project_participants WHERE project_id = ? AND participant_id = ?", projectID, participant)
}

func (s *MySQLStore) existsQueryInt(ctx context.Context, query string, projectID int64, participant string) (bool, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, query, projectID, participant).Scan(&count); err != nil {
		return false, apperr.Internal(err)
	}
	return count > 0, nil
}

func (s *MySQLStore) GetProjectByContainerName(ctx context.Context, containerName string) (*types.Project, error) {
	return scanProjectRow(s.db.QueryRowContext(ctx, projectSelectColumns+" WHERE container_name = ?", containerName))
}

func (s *MySQLStore) GetProjectsByIDs(ctx context.Context, ids []int64) ([]*types.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(ids))
	query := projectSelectColumns + " WHERE id IN ("
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ListProjectsForUser(ctx context.Context, caller string, callerIsAdmin bool) ([]*types.Project, error) {
	var rows *sql.Rows
	var err error
	if callerIsAdmin {
		rows, err = s.db.QueryContext(ctx, projectSelectColumns)
	} else {
		rows, err = s.db.QueryContext(ctx, projectSelectColumns+` WHERE owner = ? OR id IN (
			SELECT project_id FROM project_participants WHERE participant_id = ?)`, caller, caller)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *MySQLStore) UpdateProjectDeployment(ctx context.Context, projectID int64, u ProjectUpdate) error {
	return updateProjectDeployment(ctx, s.db, projectID, u)
}

func updateProjectDeployment(ctx context.Context, exec sqlExecutor, projectID int64, u ProjectUpdate) error {
	sets := []string{"container_name = ?", "deployed_image_tag = ?", "deployed_image_digest = ?"}
	args := []any{u.ContainerName, u.ImageTag, u.ImageDigest}

	if u.SourceURL != nil {
		sets = append(sets, "source_url = ?")
		args = append(args, *u.SourceURL)
	}
	if u.EnvVars != nil {
		envVarsJSON, err := marshalEnvVars(u.EnvVars)
		if err != nil {
			return apperr.Internal(err)
		}
		sets = append(sets, "env_vars = ?")
		args = append(args, envVarsJSON)
	}
	args = append(args, projectID)

	_, err := exec.ExecContext(ctx, "UPDATE projects SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *MySQLStore) DeleteProject(ctx context.Context, projectID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *MySQLStore) AddParticipant(ctx context.Context, projectID int64, participantID string) error {
	return addParticipant(ctx, s.db, projectID, participantID)
}

func addParticipant(ctx context.Context, exec sqlExecutor, projectID int64, participantID string) error {
	_, err := exec.ExecContext(ctx,
		"INSERT IGNORE INTO project_participants (project_id, participant_id) VALUES (?, ?)",
		projectID, participantID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *MySQLStore) RemoveParticipant(ctx context.Context, projectID int64, participantID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM project_participants WHERE project_id = ? AND participant_id = ?", projectID, participantID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *MySQLStore) ListParticipants(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT participant_id FROM project_participants WHERE project_id = ?", projectID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *MySQLStore) CreateDatabase(ctx context.Context, d *types.Database) (int64, error) {
	return createDatabase(ctx, s.db, d)
}

func createDatabase(ctx context.Context, exec sqlExecutor, d *types.Database) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := exec.ExecContext(ctx, `
		INSERT INTO databases (owner_login, database_name, username, encrypted_password, project_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.OwnerLogin, d.DatabaseName, d.Username, d.EncryptedPassword, d.ProjectID, d.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, apperr.Database(apperr.DatabaseAlreadyExists, "You already own a database. Only one is allowed per user.")
		}
		return 0, apperr.Internal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Internal(err)
	}
	d.ID = id
	return id, nil
}

func (s *MySQLStore) GetDatabaseByOwner(ctx context.Context, ownerLogin string) (*types.Database, error) {
	return scanDatabaseRow(s.db.QueryRowContext(ctx, databaseSelectColumns+" WHERE owner_login = ?", ownerLogin))
}

func (s *MySQLStore) LinkDatabaseToProject(ctx context.Context, databaseID, projectID int64) error {
	return linkDatabaseToProject(ctx, s.db, databaseID, projectID)
}

func linkDatabaseToProject(ctx context.Context, exec sqlExecutor, databaseID, projectID int64) error {
	_, err := exec.ExecContext(ctx, "UPDATE databases SET project_id = ? WHERE id = ?", projectID, databaseID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *MySQLStore) DeleteDatabase(ctx context.Context, databaseID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM databases WHERE id = ?", databaseID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// DeployTx runs fn against a SQL transaction wrapped in the Tx interface,
// committing iff fn returns nil.
func (s *MySQLStore) DeployTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(err)
	}

	if err := fn(&mysqlTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// mysqlTx implements Tx over an in-flight *sql.Tx.
type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) CreateProject(ctx context.Context, p *types.Project) (int64, error) {
	return createProject(ctx, t.tx, p)
}

func (t *mysqlTx) CreateDatabase(ctx context.Context, d *types.Database) (int64, error) {
	return createDatabase(ctx, t.tx, d)
}

func (t *mysqlTx) LinkDatabaseToProject(ctx context.Context, databaseID, projectID int64) error {
	return linkDatabaseToProject(ctx, t.tx, databaseID, projectID)
}

func (t *mysqlTx) AddParticipant(ctx context.Context, projectID int64, participantID string) error {
	return addParticipant(ctx, t.tx, projectID, participantID)
}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx, letting the project
// and database insert helpers run either standalone or inside DeployTx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const projectSelectColumns = `SELECT
	id, name, owner, container_name, source_kind, source_url, source_branch,
	source_root_dir, deployed_image_tag, deployed_image_digest, env_vars,
	persistent_volume_path, volume_name, created_at
	FROM projects`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProjectRow(row *sql.Row) (*types.Project, error) {
	p, err := scanProjectRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project not found")
	}
	return p, err
}

func scanProjectRows(row rowScanner) (*types.Project, error) {
	var p types.Project
	var envVarsJSON sql.NullString
	if err := row.Scan(
		&p.ID, &p.Name, &p.Owner, &p.ContainerName, &p.Source.Kind, &p.Source.URL, &p.Source.Branch,
		&p.Source.RootDir, &p.DeployedImageTag, &p.DeployedImageDigest, &envVarsJSON,
		&p.PersistentVolumePath, &p.VolumeName, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}
	if envVarsJSON.Valid && envVarsJSON.String != "" {
		if err := json.Unmarshal([]byte(envVarsJSON.String), &p.EnvVars); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	return &p, nil
}

const databaseSelectColumns = `SELECT
	id, owner_login, database_name, username, encrypted_password, project_id, created_at
	FROM databases`

func scanDatabaseRow(row *sql.Row) (*types.Database, error) {
	var d types.Database
	if err := row.Scan(&d.ID, &d.OwnerLogin, &d.DatabaseName, &d.Username, &d.EncryptedPassword, &d.ProjectID, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Database not found.")
		}
		return nil, apperr.Internal(err)
	}
	return &d, nil
}

func marshalEnvVars(vars map[string]string) (any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

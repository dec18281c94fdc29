/*
Package storage provides MySQL/MariaDB-backed persistence for hangar's
control-plane data: projects, their participants, and tenant-database
records.

MySQLStore implements Store over database/sql plus the go-sql-driver/mysql
driver, applying its schema with inline CREATE TABLE IF NOT EXISTS
statements at Open time rather than a separate migration tool. DeployTx
exposes the single transactional boundary the orchestrator needs to commit
a project row, its database row, and its participant rows together.

# Schema

Three tables: projects (one row per deployment, unique on name and on
owner), project_participants (project_id, participant_id pairs), and
databases (one row per tenant-database owner, optionally linked to a
project). Encrypted values (env vars, database passwords) are stored
exactly as pkg/security produces them — this package never encrypts or
decrypts.
*/
package storage

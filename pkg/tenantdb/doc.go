/*
Package tenantdb provisions per-owner databases on the tenant MariaDB
server: one CREATE DATABASE, one CREATE USER, a fixed grant set, and a
FLUSH PRIVILEGES, in that order. Deprovision reverses it with DROP DATABASE
IF EXISTS / DROP USER IF EXISTS so it is safe to call on a partially
provisioned owner.

Callers always run generated database and user names through
pkg/validate.TenantDBIdentifier first — Provision and Deprovision check
again defensively since they interpolate these names directly into DDL.
*/
package tenantdb

// Package pg manages the PostgreSQL connection pool for the metering
// service: connect with retry, goose schema migrations over the pgx
// bridge, health checks, and helpers for classifying common Postgres
// errors (not found, duplicate key, foreign key violation).
package pg

// Package pg provides the PostgreSQL connectivity used by the enrollment and
// security-record stores: env-configured pgxpool construction with startup
// retries, a readiness healthcheck, and goose-driven schema migrations.
package pg

package pg

import "errors"

var (
	ErrFailedToParseDBConfig    = errors.New("failed to parse database config")
	ErrFailedToOpenDBConnection = errors.New("failed to open database connection")
	ErrHealthcheckFailed        = errors.New("database healthcheck failed")
	ErrFailedToApplyMigrations  = errors.New("failed to apply migrations")
	ErrMigrationPathNotProvided = errors.New("migrations path not provided")
	ErrMigrationsDirNotFound    = errors.New("migrations directory not found")
)

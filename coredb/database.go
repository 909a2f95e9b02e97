// Package coredb provides database connection and utilities for the Perchwell marketplace.
package coredb

import (
	"encore.dev/storage/sqldb"
)

// DB is the core database instance for the Perchwell marketplace.
// It uses PostgreSQL as the underlying database engine.
var DB = sqldb.NewDatabase("coredb", sqldb.DatabaseConfig{
	Migrations: "./migrations",
})

package store

import "embed"

// Migrations holds the schema for the postgres backend, applied by
// database.RunMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the files.
const MigrationsDir = "migrations"

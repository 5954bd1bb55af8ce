package database

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationsDir is the directory inside MigrationsFS holding *.up.sql files.
const MigrationsDir = "migrations"

// MigrationsFS returns the compiled-in migration files.
func MigrationsFS() fs.FS {
	return migrations
}

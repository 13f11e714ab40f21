package repository

import "embed"

// MigrationsFS содержит SQL миграции журнала генераций.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsPath - каталог миграций внутри MigrationsFS.
const MigrationsPath = "migrations"

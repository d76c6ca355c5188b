package auth

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsFS returns the embedded schema migrations rooted at the
// migration directory, so callers address files by bare name.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// MigrationFiles lists the embedded migration files in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(MigrationsFS(), ".")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

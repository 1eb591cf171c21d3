// Package migrations embeds the schema for every supported SQL dialect.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

type Migration struct {
	Version string
	SQL     string
}

// For returns the migrations of dialect in the order they must be applied.
func For(dialect string) ([]Migration, error) {
	names, err := fs.Glob(files, path.Join(dialect, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("glob %s migrations: %w", dialect, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: path.Base(name), SQL: string(body)})
	}
	return out, nil
}

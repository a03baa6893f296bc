// Package schema creates the readings table and its index when they are missing.
// Scripts are embedded and named with a 4-digit prefix for order: 0001_name.sql, 0002_other.sql.
// Every script must be idempotent (CREATE ... IF NOT EXISTS); they run on every start.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const scriptsDir = "sql"

var scriptFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type script struct {
	version string
	name    string
	body    string
}

// Init applies every embedded script in version order inside one transaction.
// Existing rows are never touched.
func Init(ctx context.Context, db *sql.DB) error {
	scripts, err := load(sqlFS)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range scripts {
		if _, err := tx.ExecContext(ctx, s.body); err != nil {
			return fmt.Errorf("apply %s_%s.sql: %w", s.version, s.name, err)
		}
		slog.Debug("schema script applied", "version", s.version, "name", s.name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema commit: %w", err)
	}
	slog.Info("schema ready", "scripts", len(scripts))
	return nil
}

func load(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, scriptsDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var out []script
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ok := parseScriptFilename(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, scriptsDir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema script %s: %w", e.Name(), err)
		}
		out = append(out, script{version: version, name: name, body: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func parseScriptFilename(filename string) (version, name string, ok bool) {
	m := scriptFileRe.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	catalogsync "github.com/goliatone/go-catalog-sync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath    = "data/sql/migrations"
	sqliteDir   = "sqlite"
	upSuffix    = ".up.sql"
	downSuffix  = ".down.sql"
	sourceLabel = "go-catalog-sync"
)

// FilesystemSpec is the migration set of one dialect.
type FilesystemSpec struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := normalizeDialects(targets)
		if len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return DialectPostgres
	}
}

// Filesystems resolves the postgres and sqlite migration sets from root, or
// from the embedded catalog schema when root is nil. Every version must ship
// an up and a down file, and both dialects must carry the same versions.
func Filesystems(root fs.FS) ([]FilesystemSpec, error) {
	if root == nil {
		root = catalogsync.GetMigrationsFS()
	}
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, sqliteDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/" + sqliteDir, FS: sqliteFS},
	}
	for i := range filesystems {
		versions, err := pairedVersions(filesystems[i])
		if err != nil {
			return nil, err
		}
		filesystems[i].Versions = versions
	}
	if !slices.Equal(filesystems[0].Versions, filesystems[1].Versions) {
		return nil, fmt.Errorf(
			"migrations: dialect versions diverge: postgres %v, sqlite %v",
			filesystems[0].Versions, filesystems[1].Versions,
		)
	}
	return filesystems, nil
}

// Register hands the migration set of every validation target to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       sourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems(nil)
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, target := range reg.ValidationTargets {
		idx := slices.IndexFunc(filesystems, func(set FilesystemSpec) bool { return set.Dialect == target })
		if idx < 0 {
			return reg, fmt.Errorf("migrations: unknown dialect %q", target)
		}
		set := filesystems[idx]
		if err := registerFn(ctx, set.Dialect, reg.SourceLabel, set.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", set.Dialect, set.Path, err)
		}
	}
	return reg, nil
}

func pairedVersions(set FilesystemSpec) ([]string, error) {
	ups, err := fs.Glob(set.FS, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", set.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s filesystem %q has no *%s files", set.Dialect, set.Path, upSuffix)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(set.FS, version+downSuffix); err != nil {
			return nil, fmt.Errorf("migrations: %s/%s has no down migration", set.Path, up)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

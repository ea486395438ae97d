package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	paychain "github.com/goliatone/go-paychain"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel prefixes the label each dialect's schema set registers
	// under, e.g. "paychain-settlement/sqlite".
	SourceLabel = "paychain-settlement"

	rootPath = "data/sql/migrations"
)

// DefaultValidationTargets are the dialects the settlement schema ships for.
// Register checks that both carry the same migration versions.
func DefaultValidationTargets() []string {
	return []string{DialectSQLite, DialectPostgres}
}

// DialectForDriver maps a database/sql driver name to its schema dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no settlement schema for driver %q", driver)
	}
}

// FilesystemSpec is one dialect's schema set.
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

// Label is the name a dialect's schema set registers under.
func (r Registration) Label(dialect string) string {
	return r.SourceLabel + "/" + dialect
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets narrows registration to the named dialects. Version
// parity is still checked across every known dialect.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if next := normalize(targets); len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		copied := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(spec.Dialect))
			if dialect == "" || spec.FS == nil {
				continue
			}
			spec.Dialect = dialect
			copied = append(copied, spec)
		}
		if len(copied) > 0 {
			r.Filesystems = copied
		}
	}
}

// Filesystems returns the postgres and sqlite schema sets. The postgres
// files sit at the root of the migrations tree, sqlite under sqlite/.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := paychain.GetCoreMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, DialectSQLite), FS: sqliteFS},
	}
	for i := range specs {
		versions, err := schemaVersions(specs[i])
		if err != nil {
			return nil, err
		}
		specs[i].Versions = versions
	}
	return specs, nil
}

// Register hands every targeted schema set to registerFn after checking that
// each set pairs every up migration with a down one and that all dialects
// carry the same versions.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       SourceLabel,
		ValidationTargets: DefaultValidationTargets(),
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Filesystems) == 0 {
		return reg, fmt.Errorf("migrations: no schema sets to register")
	}
	if err := checkParity(reg.Filesystems); err != nil {
		return reg, err
	}

	registered := 0
	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.Label(spec.Dialect), spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s schema from %s: %w", spec.Dialect, spec.Path, err)
		}
		registered++
	}
	if registered == 0 {
		return reg, fmt.Errorf("migrations: no schema set matches targets %v", reg.ValidationTargets)
	}
	return reg, nil
}

func schemaVersions(spec FilesystemSpec) ([]string, error) {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: list %s schema: %w", spec.Dialect, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s schema at %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(spec.FS, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("migrations: %s migration %s has no down file", spec.Dialect, version)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

func checkParity(specs []FilesystemSpec) error {
	var reference FilesystemSpec
	for i, spec := range specs {
		if len(spec.Versions) == 0 {
			versions, err := schemaVersions(spec)
			if err != nil {
				return err
			}
			specs[i].Versions = versions
			spec.Versions = versions
		}
		if i == 0 {
			reference = spec
			continue
		}
		if !slices.Equal(reference.Versions, spec.Versions) {
			return fmt.Errorf("migrations: %s schema %v does not match %s schema %v",
				spec.Dialect, spec.Versions, reference.Dialect, reference.Versions)
		}
	}
	return nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, rootPath); err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, rootPath, nil
		}
	}
	if matches, _ := fs.Glob(root, "*.up.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", rootPath)
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed != "" && !slices.Contains(out, trimmed) {
			out = append(out, trimmed)
		}
	}
	return out
}

// Package postgres implements the version store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/artifacts"
	"github.com/aopkg/aopkg-server/internal/manifest"
	"github.com/aopkg/aopkg-server/internal/store"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

const versionColumns = `v.id, v.package, p.name, p.owner, v.author,
	v.short_description, v.description, v.version, v.bot_type, v.bot_version, v.github`

type pgStore struct {
	pool      *pgxpool.Pool
	artifacts *artifacts.Store
	logger    *zap.Logger
}

var _ store.Store = (*pgStore)(nil)

// New creates a store backed by the given connection pool and artifact
// storage.
func New(pool *pgxpool.Pool, artifactStore *artifacts.Store, logger *zap.Logger) store.Store {
	return &pgStore{
		pool:      pool,
		artifacts: artifactStore,
		logger:    logger,
	}
}

// Create runs identity resolution, ownership check, version insert and
// artifact write on one commit path. The packages.name unique constraint
// closes the first-insert race: a losing writer re-resolves ownership once
// instead of inserting a second identity.
func (s *pgStore) Create(ctx context.Context, rec *store.Version, ownerID int64, raw []byte) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("failed to roll back transaction", zap.Error(err))
		}
	}()

	packageID, err := s.resolvePackage(ctx, tx, rec.Name, ownerID)
	if err != nil {
		return err
	}

	versionStr := rec.Version.String()
	var repository *string
	if rec.Repository != "" {
		repository = &rec.Repository
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO versions (package, version, author, short_description, description, bot_type, bot_version, github)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		packageID, versionStr, rec.Author, rec.ShortDescription, rec.DescriptionHTML,
		rec.BotType.String(), rec.BotVersion.String(), repository,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s %s", store.ErrDuplicateVersion, rec.Name, versionStr)
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}

	// Artifact bytes go to disk before the commit so the database never
	// claims a version whose archive does not exist.
	if err := s.artifacts.Write(rec.Name, versionStr, raw); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit version insert: %w", err)
	}
	return nil
}

// resolvePackage returns the id of the identity row for name, creating it
// with ownerID when absent. Ownership conflicts are terminal.
func (s *pgStore) resolvePackage(ctx context.Context, tx pgx.Tx, name string, ownerID int64) (int64, error) {
	var (
		packageID int64
		owner     int64
	)
	err := tx.QueryRow(ctx, `SELECT id, owner FROM packages WHERE name = $1`, name).
		Scan(&packageID, &owner)
	switch {
	case err == nil:
		if owner != ownerID {
			return 0, fmt.Errorf("%w: %s", store.ErrOwnershipConflict, name)
		}
		return packageID, nil
	case errors.Is(err, pgx.ErrNoRows):
		// continue to insert below
	default:
		return 0, fmt.Errorf("failed to look up package: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO packages (name, owner) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`, name, ownerID).Scan(&packageID)
	if err == nil {
		return packageID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to create package: %w", err)
	}

	// Lost the first-insert race: the row exists now, re-resolve ownership.
	err = tx.QueryRow(ctx, `SELECT id, owner FROM packages WHERE name = $1`, name).
		Scan(&packageID, &owner)
	if err != nil {
		return 0, fmt.Errorf("failed to re-resolve package after conflict: %w", err)
	}
	if owner != ownerID {
		return 0, fmt.Errorf("%w: %s", store.ErrOwnershipConflict, name)
	}
	return packageID, nil
}

func (s *pgStore) GetVersion(ctx context.Context, name, version string) (*store.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM versions v JOIN packages p ON v.package = p.id
		 WHERE p.name = $1 AND v.version = $2`, name, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query version: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, store.ErrNotFound
	}
	return versions[0], nil
}

func (s *pgStore) GetLatest(ctx context.Context, name string) (*store.Version, error) {
	versions, err := s.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	latest := store.Latest(versions)
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *pgStore) ListVersions(ctx context.Context, name string) ([]*store.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM versions v JOIN packages p ON v.package = p.id
		 WHERE p.name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	store.SortDesc(versions)
	return versions, nil
}

func (s *pgStore) ListAll(ctx context.Context) ([]*store.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM versions v JOIN packages p ON v.package = p.id
		 ORDER BY v.package`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all versions: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}

	// Rows arrive grouped by package; order each group by version.
	var out []*store.Version
	for start := 0; start < len(versions); {
		end := start
		for end < len(versions) && versions[end].PackageID == versions[start].PackageID {
			end++
		}
		group := versions[start:end]
		store.SortDesc(group)
		out = append(out, group...)
		start = end
	}
	return out, nil
}

func (s *pgStore) ListLatest(ctx context.Context) ([]*store.Version, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	// ListAll sorts each package group descending, so the first row of a
	// group is its maximal version.
	var out []*store.Version
	for i, v := range all {
		if i == 0 || v.PackageID != all[i-1].PackageID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *pgStore) FindByRepository(ctx context.Context, coordinate string, ownerID int64) (*store.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM versions v JOIN packages p ON v.package = p.id
		 WHERE v.github = $1 AND p.owner = $2
		 ORDER BY v.id DESC LIMIT 1`, coordinate, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query by repository: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, store.ErrNotFound
	}
	return versions[0], nil
}

// scanVersions drains rows into typed records. Stored version and range
// strings were validated on ingestion, so a parse failure here indicates
// database corruption and is surfaced as an error.
func scanVersions(rows pgx.Rows) ([]*store.Version, error) {
	defer rows.Close()

	var out []*store.Version
	for rows.Next() {
		var (
			rec        store.Version
			versionStr string
			botType    string
			botVersion string
			repository *string
		)
		if err := rows.Scan(&rec.ID, &rec.PackageID, &rec.Name, &rec.OwnerID, &rec.Author,
			&rec.ShortDescription, &rec.DescriptionHTML, &versionStr, &botType, &botVersion, &repository); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}

		parsed, err := semver.StrictNewVersion(versionStr)
		if err != nil {
			return nil, fmt.Errorf("stored version %q is not valid semver: %w", versionStr, err)
		}
		rec.Version = parsed

		rec.BotType, err = manifest.ParseBotType(botType)
		if err != nil {
			return nil, fmt.Errorf("stored bot type %q is invalid: %w", botType, err)
		}

		rec.BotVersion, err = semver.NewConstraint(botVersion)
		if err != nil {
			return nil, fmt.Errorf("stored bot version range %q is invalid: %w", botVersion, err)
		}

		if repository != nil {
			rec.Repository = *repository
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version rows: %w", err)
	}
	return out, nil
}

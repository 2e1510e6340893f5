// Package store defines the version store: package identity resolution,
// ownership enforcement, persistence, and ordered retrieval.
package store

import (
	"context"
	"errors"

	"github.com/Masterminds/semver/v3"

	"github.com/aopkg/aopkg-server/internal/manifest"
)

var (
	// ErrNotFound is returned when no package or version matches a query.
	ErrNotFound = errors.New("package not found")

	// ErrOwnershipConflict is returned when a name is already owned by a
	// different identity. It must never fall through to an insert.
	ErrOwnershipConflict = errors.New("package name is owned by another user")

	// ErrDuplicateVersion is returned when a version already exists for the
	// package.
	ErrDuplicateVersion = errors.New("version already exists for package")
)

// Package is the identity record for a name. The owner is fixed for the
// lifetime of the name.
type Package struct {
	ID      int64
	Name    string
	OwnerID int64
}

// Version is one published version of a package. Immutable once inserted.
type Version struct {
	ID               int64
	PackageID        int64
	Name             string
	OwnerID          int64
	Author           string
	ShortDescription string
	DescriptionHTML  string
	Version          *semver.Version
	BotType          manifest.BotType
	BotVersion       *semver.Constraints
	Repository       string
}

// Store persists package identities and version rows.
//
// Create resolves or lazily creates the identity for rec.Name, rejects the
// write with ErrOwnershipConflict when ownerID differs from the stored
// owner, inserts the version row, and persists the raw archive bytes, all
// on a single commit path. Retrieval ordering is defined by parsed version
// value, never by insertion order.
type Store interface {
	Create(ctx context.Context, rec *Version, ownerID int64, raw []byte) error
	GetVersion(ctx context.Context, name, version string) (*Version, error)
	GetLatest(ctx context.Context, name string) (*Version, error)
	ListVersions(ctx context.Context, name string) ([]*Version, error)
	ListAll(ctx context.Context) ([]*Version, error)
	ListLatest(ctx context.Context) ([]*Version, error)
	FindByRepository(ctx context.Context, coordinate string, ownerID int64) (*Version, error)
}

// Package inmemory provides an in-memory implementation of the version
// store, used by tests and single-node deployments without Postgres.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aopkg/aopkg-server/internal/artifacts"
	"github.com/aopkg/aopkg-server/internal/store"
)

// memStore implements store.Store with mutex-guarded maps. The write lock
// is held across identity lookup, version insert, and artifact write, so
// concurrent first uploads of the same name cannot race.
type memStore struct {
	mu        sync.RWMutex
	artifacts *artifacts.Store

	nextPackageID int64
	nextVersionID int64
	packages      map[string]*store.Package
	versions      []*store.Version // insertion order
}

var _ store.Store = (*memStore)(nil)

// New creates an empty store backed by the given artifact storage.
func New(artifactStore *artifacts.Store) store.Store {
	return &memStore{
		artifacts: artifactStore,
		packages:  make(map[string]*store.Package),
	}
}

func (s *memStore) Create(_ context.Context, rec *store.Version, ownerID int64, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkg, ok := s.packages[rec.Name]
	if ok {
		if pkg.OwnerID != ownerID {
			return fmt.Errorf("%w: %s", store.ErrOwnershipConflict, rec.Name)
		}
	} else {
		s.nextPackageID++
		pkg = &store.Package{ID: s.nextPackageID, Name: rec.Name, OwnerID: ownerID}
	}

	versionStr := rec.Version.String()
	for _, v := range s.versions {
		if v.PackageID == pkg.ID && v.Version.String() == versionStr {
			return fmt.Errorf("%w: %s %s", store.ErrDuplicateVersion, rec.Name, versionStr)
		}
	}

	// Artifact first: a queryable version row must have backing bytes.
	if err := s.artifacts.Write(rec.Name, versionStr, raw); err != nil {
		return err
	}

	s.packages[rec.Name] = pkg
	s.nextVersionID++

	row := *rec
	row.ID = s.nextVersionID
	row.PackageID = pkg.ID
	row.OwnerID = pkg.OwnerID
	s.versions = append(s.versions, &row)
	return nil
}

func (s *memStore) GetVersion(_ context.Context, name, version string) (*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions {
		if v.Name == name && v.Version.String() == version {
			return v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetLatest(_ context.Context, name string) (*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := store.Latest(s.versionsOfLocked(name))
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *memStore) ListVersions(_ context.Context, name string) ([]*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versionsOfLocked(name)
	store.SortDesc(versions)
	return versions, nil
}

func (s *memStore) ListAll(_ context.Context) ([]*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[int64][]*store.Version)
	var order []int64
	for _, v := range s.versions {
		if _, seen := grouped[v.PackageID]; !seen {
			order = append(order, v.PackageID)
		}
		grouped[v.PackageID] = append(grouped[v.PackageID], v)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var out []*store.Version
	for _, id := range order {
		group := grouped[id]
		store.SortDesc(group)
		out = append(out, group...)
	}
	return out, nil
}

func (s *memStore) ListLatest(_ context.Context) ([]*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int64]*store.Version)
	var order []int64
	for _, v := range s.versions {
		cur, seen := latest[v.PackageID]
		if !seen {
			order = append(order, v.PackageID)
		}
		if !seen || v.Version.GreaterThan(cur.Version) {
			latest[v.PackageID] = v
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]*store.Version, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, nil
}

func (s *memStore) FindByRepository(_ context.Context, coordinate string, ownerID int64) (*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Most recent ingestion wins, by insertion order.
	for i := len(s.versions) - 1; i >= 0; i-- {
		v := s.versions[i]
		if v.Repository == coordinate && v.OwnerID == ownerID {
			return v, nil
		}
	}
	return nil, store.ErrNotFound
}

// versionsOfLocked returns a copied slice of the versions of a name.
// Caller must hold at least the read lock.
func (s *memStore) versionsOfLocked(name string) []*store.Version {
	var out []*store.Version
	for _, v := range s.versions {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}

// Package webhook turns external release notifications into ingestion
// runs for packages that declared a source repository.
package webhook

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/store"
)

// ActionPublished is the only notification action that triggers ingestion.
const ActionPublished = "published"

// ErrNoPackage is returned when no owned package matches the notification's
// repository coordinate. Distinct from the fetcher's no-release error.
var ErrNoPackage = errors.New("no package found for repository")

// ReleaseEvent is the release notification payload.
type ReleaseEvent struct {
	Action     string     `json:"action"`
	Repository Repository `json:"repository"`
	Sender     Sender     `json:"sender"`
}

// Repository identifies the notifying repository.
type Repository struct {
	FullName string `json:"full_name"`
}

// Sender identifies the notification's sender.
type Sender struct {
	ID int64 `json:"id"`
}

// ReleaseFetcher downloads the latest release archive of a repository.
type ReleaseFetcher interface {
	FetchLatestRelease(ctx context.Context, repo string) ([]byte, error)
}

// Ingester runs the upload pipeline for a payload on behalf of an owner.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte, ownerID int64) (*store.Version, error)
}

// Trigger resolves notifications against the store and re-ingests.
type Trigger struct {
	store   store.Store
	fetcher ReleaseFetcher
	ingest  Ingester
	logger  *zap.Logger
}

// New creates a webhook trigger.
func New(st store.Store, f ReleaseFetcher, ing Ingester, logger *zap.Logger) *Trigger {
	return &Trigger{
		store:   st,
		fetcher: f,
		ingest:  ing,
		logger:  logger,
	}
}

// Handle processes one notification. Non-published actions are a no-op
// with handled=false. The sender identity gates the ownership lookup, but
// the write itself uses the existing package's owner id.
func (t *Trigger) Handle(ctx context.Context, event *ReleaseEvent) (handled bool, err error) {
	if event.Action != ActionPublished {
		t.logger.Debug("ignoring release notification",
			zap.String("action", event.Action),
			zap.String("repository", event.Repository.FullName),
		)
		return false, nil
	}

	coordinate := event.Repository.FullName
	existing, err := t.store.FindByRepository(ctx, coordinate, event.Sender.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrNoPackage, coordinate)
		}
		return false, err
	}

	payload, err := t.fetcher.FetchLatestRelease(ctx, coordinate)
	if err != nil {
		return false, err
	}

	if _, err := t.ingest.Ingest(ctx, payload, existing.OwnerID); err != nil {
		return false, err
	}
	return true, nil
}

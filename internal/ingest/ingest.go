// Package ingest turns an uploaded archive into a validated, persisted
// package version. The same pipeline serves direct uploads and
// webhook-triggered release fetches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/archive"
	"github.com/aopkg/aopkg-server/internal/manifest"
	"github.com/aopkg/aopkg-server/internal/render"
	"github.com/aopkg/aopkg-server/internal/store"
	"github.com/aopkg/aopkg-server/internal/validators"
)

// ParseTimeout bounds the combined extract+parse+render stage. Adversarial
// archives (zip bombs, pathological compression) are abandoned instead of
// stalling request handling.
const ParseTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when the parse stage exceeds its deadline.
	// Distinct from a malformed-archive error.
	ErrTimeout = errors.New("package parsing timed out")

	// ErrRejected marks any parse-stage failure, wrapping the underlying
	// archive or manifest error so callers can still inspect it.
	ErrRejected = errors.New("package rejected")

	// ErrValidationFailed is returned when a parseable package violates a
	// field length or charset constraint. Reported without per-field
	// detail, distinguishing it from parse failure.
	ErrValidationFailed = errors.New("package format ok, but parts too long")
)

// Service runs the ingestion pipeline against a version store.
type Service struct {
	store   store.Store
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithTimeout overrides the parse deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// New creates an ingestion service.
func New(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		logger:  logger,
		timeout: ParseTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates and persists one uploaded archive for ownerID. Every
// failure is terminal for this attempt; nothing is retried and no partial
// state is committed.
func (s *Service) Ingest(ctx context.Context, payload []byte, ownerID int64) (*store.Version, error) {
	rec, err := s.parse(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	if !validators.ValidPackage(rec) {
		return nil, ErrValidationFailed
	}

	if err := s.store.Create(ctx, rec, ownerID, payload); err != nil {
		return nil, err
	}

	s.logger.Info("package version ingested",
		zap.String("name", rec.Name),
		zap.String("version", rec.Version.String()),
		zap.Int64("owner", ownerID),
	)
	return rec, nil
}

// parse runs the CPU-bound pipeline stage on its own goroutine and bounds
// it with the configured deadline. On expiry the worker is abandoned; its
// buffered result channel keeps it from leaking.
func (s *Service) parse(ctx context.Context, payload []byte) (*store.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		rec *store.Version
		err error
	}
	ch := make(chan result, 1)

	go func() {
		rec, err := buildRecord(payload)
		ch <- result{rec: rec, err: err}
	}()

	select {
	case r := <-ch:
		return r.rec, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	}
}

// buildRecord transforms raw archive bytes into a version record candidate.
func buildRecord(payload []byte) (*store.Version, error) {
	contents, err := archive.Extract(payload)
	if err != nil {
		return nil, err
	}

	m, err := manifest.Parse(contents.ManifestText)
	if err != nil {
		return nil, err
	}

	return &store.Version{
		Name:             m.Name,
		Author:           m.Author,
		ShortDescription: m.Description,
		DescriptionHTML:  render.ToHTML(contents.ReadmeText),
		Version:          m.Version,
		BotType:          m.BotType,
		BotVersion:       m.BotVersion,
		Repository:       m.Repository,
	}, nil
}

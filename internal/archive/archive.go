// Package archive copies finished renders into a blob store under a
// content-addressed, date-partitioned path.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/metrics"
	"github.com/JakeFAU/htmlshot/internal/render"
	"github.com/JakeFAU/htmlshot/internal/storage"
)

// Hasher turns image bytes into a stable object name.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Archiver implements render.Archiver on top of a storage.BlobStore.
type Archiver struct {
	store  storage.BlobStore
	hasher Hasher
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithPrefix replaces the default "renders" path prefix.
func WithPrefix(prefix string) Option {
	return func(a *Archiver) { a.prefix = prefix }
}

// WithClock injects the time source used for the date partition.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New builds an Archiver.
func New(store storage.BlobStore, hasher Hasher, logger *zap.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Archiver{
		store:  store,
		hasher: hasher,
		prefix: "renders",
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ObjectPath returns prefix/YYYY/MM/DD/<digest>.<ext>, dated in UTC.
func ObjectPath(prefix string, at time.Time, digest string, format render.Format) string {
	at = at.UTC()
	return path.Join(prefix, at.Format("2006"), at.Format("01"), at.Format("02"), digest+"."+format.Extension())
}

// Archive stores data and returns its URI.
func (a *Archiver) Archive(ctx context.Context, format render.Format, data []byte) (string, error) {
	digest, err := a.hasher.Hash(data)
	if err != nil {
		metrics.ObserveArchiveWrite("error")
		return "", fmt.Errorf("hash render: %w", err)
	}
	objectPath := ObjectPath(a.prefix, a.now(), digest, format)
	uri, err := a.store.PutObject(ctx, objectPath, format.ContentType(), bytes.NewReader(data))
	if err != nil {
		metrics.ObserveArchiveWrite("error")
		return "", fmt.Errorf("put %s: %w", objectPath, err)
	}
	metrics.ObserveArchiveWrite("ok")
	a.logger.Debug("render archived", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return uri, nil
}

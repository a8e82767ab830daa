package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/htmlshot/internal/hash/sha256"
	"github.com/JakeFAU/htmlshot/internal/render"
	"github.com/JakeFAU/htmlshot/internal/storage/memory"
)

var _ render.Archiver = (*Archiver)(nil)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 7, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))
}

func TestObjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format render.Format
		want   string
	}{
		{"png", render.FormatPNG, "renders/2026/03/08/abc.png"},
		{"jpeg uses jpg", render.FormatJPEG, "renders/2026/03/08/abc.jpg"},
		{"webp", render.FormatWebP, "renders/2026/03/08/abc.webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ObjectPath("renders", fixedClock(), "abc", tt.format))
		})
	}
}

func TestArchive(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := New(store, sha256.New(), nil, WithClock(fixedClock))

	data := []byte("hello world")
	uri, err := a.Archive(context.Background(), render.FormatPNG, data)
	require.NoError(t, err)

	want := "renders/2026/03/08/b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9.png"
	assert.Equal(t, "memory://"+want, uri)
	stored, ok := store.Get(want)
	require.True(t, ok)
	assert.Equal(t, data, stored)
}

func TestArchivePrefix(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := New(store, sha256.New(), nil, WithClock(fixedClock), WithPrefix("shots"))
	_, err := a.Archive(context.Background(), render.FormatWebP, []byte("x"))
	require.NoError(t, err)
	require.Len(t, store.Paths(), 1)
	assert.Contains(t, store.Paths()[0], "shots/2026/03/08/")
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

type failingHasher struct{}

func (failingHasher) Hash([]byte) (string, error) { return "", errors.New("no hash") }

func TestArchiveErrors(t *testing.T) {
	t.Parallel()

	_, err := New(failingStore{}, sha256.New(), nil).Archive(context.Background(), render.FormatPNG, []byte("x"))
	assert.ErrorContains(t, err, "bucket gone")

	_, err = New(memory.NewBlobStore(), failingHasher{}, nil).Archive(context.Background(), render.FormatPNG, []byte("x"))
	assert.ErrorContains(t, err, "no hash")
}

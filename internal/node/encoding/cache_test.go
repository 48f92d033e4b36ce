package encoding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphera/internal/extractor"
)

// mapSource serves samples from memory in insertion order.
type mapSource struct {
	slugs  []string
	images map[string][][]byte
}

func newMapSource() *mapSource {
	return &mapSource{images: map[string][][]byte{}}
}

func (m *mapSource) add(slug string, images ...[]byte) {
	if _, ok := m.images[slug]; !ok {
		m.slugs = append(m.slugs, slug)
	}
	m.images[slug] = append(m.images[slug], images...)
}

func (m *mapSource) Walk(fn func(slug string, image []byte) error) error {
	for _, slug := range m.slugs {
		for _, image := range m.images[slug] {
			if err := fn(slug, image); err != nil {
				return err
			}
		}
	}
	return nil
}

// byteExtractor maps each image to one embedding: [first byte].
type byteExtractor struct{ fail error }

func (e byteExtractor) Embeddings(_ context.Context, image []byte) ([]extractor.Vector, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	if len(image) == 0 {
		return nil, nil
	}
	return []extractor.Vector{{float64(image[0])}}, nil
}

func TestRebuildCoversEveryIdentity(t *testing.T) {
	src := newMapSource()
	src.add("jane", []byte{1}, []byte{2})
	src.add("john", []byte{3})

	cache := New(src, byteExtractor{}, nil)
	require.NoError(t, cache.Rebuild(context.Background()))

	tags, embeddings, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jane", "jane", "john"}, tags)
	require.Len(t, embeddings, 3)
	assert.Equal(t, extractor.Vector{3}, embeddings[2])
}

func TestIdentityWithNoUsableSamplesIsAbsent(t *testing.T) {
	src := newMapSource()
	src.add("jane", []byte{1})
	src.add("ghost", []byte{}) // extractor finds no face

	cache := New(src, byteExtractor{}, nil)
	require.NoError(t, cache.Rebuild(context.Background()))

	tags, _, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jane"}, tags)
}

func TestSnapshotLazilyRebuilds(t *testing.T) {
	src := newMapSource()
	src.add("jane", []byte{1})

	cache := New(src, byteExtractor{}, nil)
	tags, _, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestRebuildReplacesNotMerges(t *testing.T) {
	src := newMapSource()
	src.add("jane", []byte{1})

	cache := New(src, byteExtractor{}, nil)
	require.NoError(t, cache.Rebuild(context.Background()))
	require.Equal(t, 1, cache.Len())

	// Replace jane's samples entirely; a rebuild must not accumulate.
	src.images["jane"] = [][]byte{{5}, {6}}
	require.NoError(t, cache.Rebuild(context.Background()))

	tags, embeddings, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jane", "jane"}, tags)
	assert.Equal(t, extractor.Vector{5}, embeddings[0])
}

func TestInvalidateForcesReload(t *testing.T) {
	src := newMapSource()
	src.add("jane", []byte{1})

	cache := New(src, byteExtractor{}, nil)
	require.NoError(t, cache.Rebuild(context.Background()))

	src.add("john", []byte{2})
	cache.Invalidate()
	assert.Equal(t, 0, cache.Len())

	tags, _, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jane", "john"}, tags)
}

func TestRebuildPropagatesExtractorFailure(t *testing.T) {
	src := newMapSource()
	src.add("jane", []byte{1})

	wantErr := errors.New("extractor down")
	cache := New(src, byteExtractor{fail: wantErr}, nil)
	err := cache.Rebuild(context.Background())
	require.ErrorIs(t, err, wantErr)
}

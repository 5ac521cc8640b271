package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmatch/backend/internal/domain"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func imageServer(t *testing.T, images map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img, ok := images[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(img)
	}))
}

func featureServer(t *testing.T, extractions *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/features", r.URL.Path)
		extractions.Add(1)
		// Deterministic features derived from the payload's first byte.
		body := make([]byte, 1)
		r.Body.Read(body)
		json.NewEncoder(w).Encode(signature{Features: []float32{float32(body[0]), 1}})
	}))
}

func TestCompare(t *testing.T) {
	var extractions atomic.Int32
	images := imageServer(t, map[string][]byte{
		"/a.jpg": {10, 2, 3},
		"/b.jpg": {10, 9, 9},
		"/c.jpg": {200, 1, 1},
	})
	defer images.Close()
	features := featureServer(t, &extractions)
	defer features.Close()

	cache := newMapCache()
	comparer := NewComparer(features.URL, cache, nil)
	ctx := context.Background()

	t.Run("identical leading features score high", func(t *testing.T) {
		sim, ok := comparer.Compare(ctx, images.URL+"/a.jpg", images.URL+"/b.jpg")
		require.True(t, ok)
		assert.InDelta(t, 1.0, sim, 0.01)
	})

	t.Run("signatures are cached by content hash", func(t *testing.T) {
		before := extractions.Load()
		_, ok := comparer.Compare(ctx, images.URL+"/a.jpg", images.URL+"/b.jpg")
		require.True(t, ok)
		assert.Equal(t, before, extractions.Load(), "repeat comparison must hit the cache")
	})

	t.Run("missing image is an absent signal", func(t *testing.T) {
		_, ok := comparer.Compare(ctx, images.URL+"/missing.jpg", images.URL+"/a.jpg")
		assert.False(t, ok)
	})

	t.Run("score stays in bounds", func(t *testing.T) {
		sim, ok := comparer.Compare(ctx, images.URL+"/a.jpg", images.URL+"/c.jpg")
		require.True(t, ok)
		assert.GreaterOrEqual(t, sim, 0.0)
		assert.LessOrEqual(t, sim, 1.0)
	})
}

func TestCompare_VisionServiceDown(t *testing.T) {
	images := imageServer(t, map[string][]byte{"/a.jpg": {1, 2, 3}})
	defer images.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	comparer := NewComparer(broken.URL, nil, nil)
	_, ok := comparer.Compare(context.Background(), images.URL+"/a.jpg", images.URL+"/a.jpg")
	assert.False(t, ok)
}

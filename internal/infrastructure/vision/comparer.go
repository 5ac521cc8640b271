package vision

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
)

const (
	// maxImageBytes caps a single image download.
	maxImageBytes = 10 << 20

	// featureTTL is how long an extracted signature stays cached. Images at
	// a stable URL rarely change within a job's lifetime.
	featureTTL = 24 * time.Hour
)

// Comparer scores the visual similarity of two product images. Image bytes
// are fetched with a hard size cap, their feature vectors extracted by the
// vision service, and signatures memoized by content hash so re-listed
// images cost one extraction, not one per candidate pair.
type Comparer struct {
	httpClient *http.Client
	baseURL    string
	cache      domain.ByteCache
	log        *zap.Logger
}

// NewComparer creates a vision comparer. cache may be nil, which disables
// signature memoization.
func NewComparer(baseURL string, cache domain.ByteCache, log *zap.Logger) *Comparer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Comparer{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		cache:   cache,
		log:     log,
	}
}

type signature struct {
	Features []float32 `json:"features"`
}

// Compare returns the cosine similarity of the two images' feature vectors.
// ok is false whenever either signature could not be obtained; the caller
// treats that as an absent signal.
func (c *Comparer) Compare(ctx context.Context, sourceURL, targetURL string) (float64, bool) {
	src, err := c.signatureFor(ctx, sourceURL)
	if err != nil {
		c.log.Debug("visual signature unavailable", zap.String("url", sourceURL), zap.Error(err))
		return 0, false
	}
	tgt, err := c.signatureFor(ctx, targetURL)
	if err != nil {
		c.log.Debug("visual signature unavailable", zap.String("url", targetURL), zap.Error(err))
		return 0, false
	}

	sim := cosine(src.Features, tgt.Features)
	if sim < 0 {
		sim = 0
	}
	return sim, true
}

// signatureFor downloads the image, hashes its content, and returns the
// cached or freshly extracted feature vector.
func (c *Comparer) signatureFor(ctx context.Context, imageURL string) (*signature, error) {
	data, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	key := "vision:sig:" + hex.EncodeToString(sum[:])

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key); err == nil {
			var sig signature
			if err := json.Unmarshal(cached, &sig); err == nil && len(sig.Features) > 0 {
				return &sig, nil
			}
		}
	}

	sig, err := c.extract(ctx, data)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(sig); err == nil {
			if err := c.cache.Set(ctx, key, encoded, featureTTL); err != nil {
				c.log.Debug("failed to cache visual signature", zap.Error(err))
			}
		}
	}
	return sig, nil
}

func (c *Comparer) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("image read failed: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}
	return data, nil
}

func (c *Comparer) extract(ctx context.Context, image []byte) (*signature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/features", bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vision service returned status %d: %s", resp.StatusCode, string(body))
	}

	var sig signature
	if err := json.NewDecoder(resp.Body).Decode(&sig); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(sig.Features) == 0 {
		return nil, fmt.Errorf("vision service returned no features")
	}
	return &sig, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

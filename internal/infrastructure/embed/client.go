package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shelfmatch/backend/internal/domain"
)

// Client talks to the embedding service, which exposes single and batch
// encode endpoints and returns L2-normalized vectors.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	log         *zap.Logger
}

// NewClient creates an embedding service client. rps bounds request rate;
// zero or negative means 10 requests per second.
func NewClient(baseURL string, rps float64, log *zap.Logger) *Client {
	if rps <= 0 {
		rps = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 10),
		log:         log,
	}
}

type encodeRequest struct {
	Texts []string `json:"texts"`
}

type encodeResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// Encode returns the embedding vector for one text.
func (c *Client) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", domain.ErrEmbeddingFailure, len(vectors))
	}
	return vectors[0], nil
}

// EncodeBatch returns one vector per input text, in input order. Transient
// failures are retried up to 3 times with backoff.
func (c *Client) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(encodeRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, payload)
		if err != nil {
			c.log.Warn("embedding request failed",
				zap.Int("attempt", attempt),
				zap.Int("batch_size", len(texts)),
				zap.Error(err))
			lastErr = err
			time.Sleep(time.Duration(attempt*500) * time.Millisecond)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%w: status %d", domain.ErrEmbeddingFailure, resp.StatusCode)
			c.log.Warn("embedding service error",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", body))
			// Client errors other than rate limiting will not recover.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
			time.Sleep(time.Duration(attempt*500) * time.Millisecond)
			continue
		}

		var encoded encodeResponse
		if err := json.Unmarshal(body, &encoded); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(encoded.Vectors) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d",
				domain.ErrEmbeddingFailure, len(texts), len(encoded.Vectors))
		}
		return encoded.Vectors, nil
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/encode", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, err)
	}
	return resp, nil
}

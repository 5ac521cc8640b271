package verdict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
)

// Client talks to the arbitration service that judges borderline product
// pairs. When no base URL is configured the client degrades to a permanent
// skipped verdict instead of erroring, so matching proceeds unadjusted.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
}

// NewClient creates an arbitration client. An empty baseURL yields a client
// that always skips.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		log:     log,
	}
}

// Configured reports whether the client has a service to call.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Validate asks the arbitration service for a verdict on one pair.
func (c *Client) Validate(ctx context.Context, req domain.VerdictRequest) (domain.VerdictResponse, error) {
	if !c.Configured() {
		return domain.VerdictResponse{Verdict: domain.VerdictSkipped}, nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return domain.VerdictResponse{}, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(payload))
	if err != nil {
		return domain.VerdictResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.VerdictResponse{}, fmt.Errorf("arbitration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.VerdictResponse{}, fmt.Errorf("arbitration service returned status %d: %s",
			resp.StatusCode, string(body))
	}

	var out domain.VerdictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.VerdictResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	// Unknown verdict strings from a newer service version are treated as
	// uncertain rather than rejected.
	switch domain.Verdict(strings.ToLower(string(out.Verdict))) {
	case domain.VerdictConfirmed:
		out.Verdict = domain.VerdictConfirmed
	case domain.VerdictRejected:
		out.Verdict = domain.VerdictRejected
	default:
		out.Verdict = domain.VerdictUncertain
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}

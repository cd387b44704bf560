// Package provider holds clients for external services. The only one the
// game needs is an entropy source for the hidden-role draw.
package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"
)

// RandomOrgClient provides true random numbers from RANDOM.ORG with CSPRNG fallback.
type RandomOrgClient struct {
	apiKey string
	logger *slog.Logger
	client *http.Client
}

// NewRandomOrgClient creates a new RANDOM.ORG client.
func NewRandomOrgClient(apiKey string, logger *slog.Logger) *RandomOrgClient {
	return &RandomOrgClient{
		apiKey: apiKey,
		logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// DrawIndex returns a uniform random index in [0, n). Used to choose which
// participant receives the hidden role. Falls back to crypto/rand if the API
// is unavailable, so a start never fails on entropy.
func (c *RandomOrgClient) DrawIndex(ctx context.Context, n int) int {
	if n <= 1 {
		return 0
	}
	if c.apiKey == "" {
		c.logger.Debug("random.org api key not set, using CSPRNG fallback")
		return csprngIndex(n)
	}

	result, err := c.fetchFromAPI(ctx, 1, 0, n-1)
	if err != nil || len(result) == 0 {
		c.logger.Warn("random.org unavailable, falling back to CSPRNG", "error", err)
		return csprngIndex(n)
	}
	return result[0]
}

func (c *RandomOrgClient) fetchFromAPI(ctx context.Context, n, min, max int) ([]int, error) {
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]interface{}{
			"apiKey":      c.apiKey,
			"n":           n,
			"min":         min,
			"max":         max,
			"replacement": true,
		},
		"id": 1,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.random.org/json-rpc/4/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %d", resp.StatusCode)
	}

	var response struct {
		Result struct {
			Random struct {
				Data []int `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("api error: %s", response.Error.Message)
	}

	return response.Result.Random.Data, nil
}

// csprngIndex draws an index from crypto/rand.
func csprngIndex(n int) int {
	r, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand never fails on supported platforms
		return 0
	}
	return int(r.Int64())
}

package reason

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generator is the natural-language backend contract: one prompt in, raw
// text out. The backend is assumed unreliable and adversarial to schema;
// nothing downstream trusts its output unvalidated.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPGenerator calls the railproxy's /reason endpoint, which fronts the
// actual model host.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGenerator(baseURL string) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/reason", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reason backend request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reason backend status %d", resp.StatusCode)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("reason backend: expected JSON envelope: %w", err)
	}
	return decoded.Text, nil
}

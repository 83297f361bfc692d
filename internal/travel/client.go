package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// reisinfoClient talks to the railproxy's reisinformatie passthrough.
type reisinfoClient struct {
	baseURL string
	client  *http.Client
}

func newReisinfoClient(baseURL string) *reisinfoClient {
	return &reisinfoClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// get fetches one reisinformatie endpoint and decodes the JSON response
// into out.
func (c *reisinfoClient) get(ctx context.Context, endpoint string, query map[string]string, out any) error {
	u, err := url.Parse(c.baseURL + "/ns/reisinformatie/" + endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	for k, v := range query {
		if v == "" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reisinformatie request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reisinformatie %s: status %d: %s", endpoint, resp.StatusCode, truncate(string(body), 120))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("reisinformatie %s: expected JSON: %s", endpoint, truncate(string(body), 120))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "railwatch/internal/log"
)

// feedFetcher fetches ICS subscription feeds with conditional requests
// (ETag / Last-Modified) and a disk-backed body cache keyed by a hash of
// the URL. On network errors or non-OK statuses it falls back to the
// cached body when one exists.
type feedFetcher struct {
	client   *http.Client
	cacheDir string
}

// feedMeta holds HTTP cache metadata for a single feed URL.
type feedMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newFeedFetcher(cacheDir string) *feedFetcher {
	if cacheDir == "" {
		// Relative fallback so development runs without root permissions.
		cacheDir = "./var/ics-cache"
	}
	return &feedFetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// fetch returns the ICS body for the given feed, either freshly fetched or
// from the disk cache.
func (f *feedFetcher) fetch(ctx context.Context, id, feedURL string) ([]byte, error) {
	if feedURL == "" {
		return nil, errors.New("feed URL is empty")
	}

	dir := f.cachePath(feedURL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	meta := f.loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "id", id, "url", redactURL(feedURL))
			return cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		f.saveCache(dir, feedMeta{
			URL:          feedURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}, body)
		appLog.Debug("ics fetch success", "id", id, "url", redactURL(feedURL), "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, errors.New("304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified, using cache", "id", id, "url", redactURL(feedURL))
		return cached, nil

	default:
		if len(cached) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", id, "status", resp.StatusCode)
			return cached, nil
		}
		return nil, errors.New(resp.Status)
	}
}

func (f *feedFetcher) cachePath(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *feedFetcher) loadMeta(dir string) feedMeta {
	var meta feedMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return feedMeta{}
	}
	return meta
}

func (f *feedFetcher) saveCache(dir string, meta feedMeta, body []byte) {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		appLog.Error("ics cache body write failed", err, "dir", dir)
		return
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600); err != nil {
		appLog.Error("ics cache meta write failed", err, "dir", dir)
	}
}

// redactURL hides path and query of a feed URL for logging; private ICS
// URLs routinely embed access tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

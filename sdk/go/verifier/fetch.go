package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// maxDocumentBytes bounds every fetched document.
const maxDocumentBytes = 1 << 20

// conditionalFetcher remembers the ETag and decoded body of each URL and revalidates with
// If-None-Match.
type conditionalFetcher struct {
	client *http.Client
	accept string

	mu      sync.Mutex
	entries map[string]fetched
}

type fetched struct {
	etag string
	body []byte
}

func newConditionalFetcher(client *http.Client, accept string) *conditionalFetcher {
	return &conditionalFetcher{client: client, accept: accept, entries: make(map[string]fetched)}
}

// fetchJSON decodes the current representation of url into out. A 304 reuses the remembered body.
func (f *conditionalFetcher) fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", f.accept)

	f.mu.Lock()
	prev, known := f.entries[url]
	f.mu.Unlock()
	if known && prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	var body []byte
	switch {
	case resp.StatusCode == http.StatusNotModified && known:
		body = prev.body
	case resp.StatusCode == http.StatusOK:
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			return fmt.Errorf("read %s: %w", url, err)
		}
		f.mu.Lock()
		f.entries[url] = fetched{etag: resp.Header.Get("ETag"), body: body}
		f.mu.Unlock()
	default:
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func (f *conditionalFetcher) forget(url string) {
	f.mu.Lock()
	delete(f.entries, url)
	f.mu.Unlock()
}

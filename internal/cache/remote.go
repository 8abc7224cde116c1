package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"forge/internal/cachekey"
	"forge/internal/logging"
)

// RemoteClient is the remote cache contract: pull returns a nil handle
// (no error) on a miss; push failures are logged but never fail a build.
type RemoteClient interface {
	Pull(ctx context.Context, key cachekey.Key) (Handle, error)
	Push(ctx context.Context, key cachekey.Key, blob io.Reader) error
}

// HTTPRemote is a RemoteClient backed by a simple content-addressed HTTP
// endpoint: GET <base>/<key> to pull, PUT <base>/<key> to push.
type HTTPRemote struct {
	base   string
	client *http.Client
}

// NewHTTPRemote builds a remote client pointed at baseURL.
func NewHTTPRemote(baseURL string) *HTTPRemote {
	return &HTTPRemote{base: baseURL, client: &http.Client{Timeout: 60 * time.Second}}
}

// Pull fetches key's blob. A 404 is reported as a plain miss (nil, nil),
// never an error.
func (r *HTTPRemote) Pull(ctx context.Context, key cachekey.Key) (Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/"+string(key), nil)
	if err != nil {
		return nil, fmt.Errorf("cache: build pull request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("remote pull transport error for %s: %v", key, err)
		return nil, nil // transient failures are treated as a miss, not a hard error
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		logging.Get(logging.CategoryCache).Warn("remote pull for %s returned status %d", key, resp.StatusCode)
		return nil, nil
	}
	return resp.Body, nil
}

// Push uploads key's blob. Failures are logged and swallowed — a push
// failure must never fail the build that produced the artifact.
func (r *HTTPRemote) Push(ctx context.Context, key cachekey.Key, blob io.Reader) error {
	data, err := io.ReadAll(blob)
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("remote push for %s: read blob: %v", key, err)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.base+"/"+string(key), bytes.NewReader(data))
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("remote push for %s: build request: %v", key, err)
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("remote push for %s: transport error: %v", key, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		logging.Get(logging.CategoryCache).Warn("remote push for %s returned status %d", key, resp.StatusCode)
	}
	return nil
}

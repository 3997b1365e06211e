package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Fetcher reads the raw bytes of a source location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileFetcher reads locations relative to a data directory.
type FileFetcher struct {
	Dir string
}

// Fetch reads a GeoJSON file from the data directory.
func (f FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(location, "..") {
		return nil, fmt.Errorf("invalid source path %q", location)
	}
	return os.ReadFile(filepath.Join(f.Dir, location))
}

// HTTPFetcher downloads remote locations, retrying transient failures.
type HTTPFetcher struct {
	Client   *http.Client
	Attempts uint
	Delay    time.Duration
}

// Fetch downloads a location. 4xx responses are not retried.
func (h HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	attempts := h.Attempts
	if attempts == 0 {
		attempts = 3
	}
	delay := h.Delay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}

	return retry.DoWithData(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Unrecoverable(fmt.Errorf("GET %s: %s", location, resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: %s", location, resp.Status)
		}
		return io.ReadAll(resp.Body)
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// AutoFetcher dispatches http(s) locations to Remote and everything else to
// Local.
type AutoFetcher struct {
	Local  Fetcher
	Remote Fetcher
}

// Fetch picks a fetcher by URL scheme.
func (a AutoFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return a.Remote.Fetch(ctx, location)
	}
	return a.Local.Fetch(ctx, location)
}

package accessors

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// HTTPConfig controls an HTTPAccessor's connection behavior.
type HTTPConfig struct {
	connectTimeout time.Duration
}

// DefaultHTTPConfig matches the reference implementation's curl-based
// accessor: a 2 second connect timeout.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{connectTimeout: 2 * time.Second}
}

func (c HTTPConfig) WithConnectTimeout(d time.Duration) HTTPConfig {
	c.connectTimeout = d
	return c
}

func (c HTTPConfig) ConnectTimeout() time.Duration { return c.connectTimeout }

// HTTPAccessor reads byte ranges from a remote file using HTTP Range
// requests. Concurrent identical range reads from multiple goroutines are
// collapsed into a single underlying request via singleflight.
type HTTPAccessor struct {
	url    string
	client *http.Client
	group  singleflight.Group
}

// NewHTTPAccessor builds an accessor against url using config.
func NewHTTPAccessor(url string, config HTTPConfig) *HTTPAccessor {
	return &HTTPAccessor{
		url: url,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:       http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{Timeout: config.connectTimeout}).DialContext,
			},
		},
	}
}

// Read implements ncd.ReadAccessor.
func (a *HTTPAccessor) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d-%d", offset, length)
	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		return a.readRange(ctx, offset, length)
	})
	if err != nil {
		return nil, err
	}
	out := v.([]byte)
	cp := make([]byte, len(out))
	copy(cp, out)
	return cp, nil
}

func (a *HTTPAccessor) readRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("accessors: build request: %w", err)
	}
	last := offset + length - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, last))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("accessors: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("accessors: http status %d for range %d-%d", resp.StatusCode, offset, last)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("accessors: read response body: %w", err)
	}
	if uint64(len(body)) != length {
		return nil, fmt.Errorf("%w: wanted %d bytes, got %d", ErrBadRange, length, len(body))
	}
	return body, nil
}

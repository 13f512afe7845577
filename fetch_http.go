package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultUserAgent       = "nuhbot/1.0"
	defaultMaxPayloadBytes = int64(64 << 20)
)

var (
	errFetchTimeout    = errors.New("fetch timed out")
	errPayloadTooLarge = errors.New("payload too large")
)

// payloadGetter is the transport primitive: url in, body bytes or error out.
type payloadGetter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// httpStatusError reports a response outside the 2xx range.
type httpStatusError struct {
	Code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Code)
}

type httpGetter struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func newHTTPGetter(maxBytes int64, userAgent string) *httpGetter {
	if maxBytes <= 0 {
		maxBytes = defaultMaxPayloadBytes
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &httpGetter{
		// Per-request deadlines come from the caller's context.
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

func (g *httpGetter) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &httpStatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	if int64(len(body)) > g.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errPayloadTooLarge, g.maxBytes)
	}
	return body, nil
}

func classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errFetchTimeout, err)
	}
	return err
}

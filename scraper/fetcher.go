package scraper

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/bookwatch/config"
)

// Fetcher performs a single resilient GET against the catalog. Retries
// run inside the client with a fixed wait between attempts; after the
// last attempt fails the caller gets a classified *FetchError, never a
// panic or a partial body.
type Fetcher struct {
	client  *resty.Client
	metrics *Metrics
}

// NewFetcher builds a fetcher from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) *Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(cfg.RetryDelay)

	client.SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	// A 404 is a terminal answer from this catalog (it is how pagination
	// ends), so only transport errors and other non-2xx statuses are
	// worth another attempt.
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return !r.IsSuccess() && r.StatusCode() != http.StatusNotFound
	})

	f := &Fetcher{client: client, metrics: metrics}

	client.AddRetryHook(func(r *resty.Response, err error) {
		f.metrics.IncRetries()
		status := 0
		url := ""
		if r != nil {
			status = r.StatusCode()
			if r.Request != nil {
				url = r.Request.URL
			}
		}
		slog.Warn("retrying request",
			slog.String("url", url),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	})

	return f
}

// SetTransport swaps the underlying round tripper. Tests use this to
// attach an httpmock transport.
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.client.SetTransport(rt)
}

// Fetch issues a GET and returns the body on a 2xx response. Any other
// outcome, after the retry budget is spent, comes back as a classified
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.metrics.IncRequest("started")
	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	f.metrics.ObserveDuration(time.Since(start))

	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if err != nil || resp == nil || !resp.IsSuccess() {
		kind := classify(err, status)
		f.metrics.IncError(string(kind))
		fe := &FetchError{URL: url, Kind: kind, Status: status, Err: err}
		slog.Error("request failed",
			slog.String("url", url),
			slog.String("category", string(kind)),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		return nil, fe
	}

	f.metrics.IncRequest("completed")
	return resp.Body(), nil
}

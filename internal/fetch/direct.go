package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// DirectConfig configures the last-resort direct HTTP channel.
type DirectConfig struct {
	Proxies []string
	Timeout time.Duration
	Logger  *zap.Logger
}

// maxProxies caps the rotation so a huge proxy file cannot stall a fetch.
const maxProxies = 20

// DirectChannel requests the profile URL straight from the target site with
// desktop impersonation headers, rotating through each configured proxy and
// finally a direct connection. It runs last in the chain; the target blocks
// most of these, but a hit is nearly free.
type DirectChannel struct {
	proxies []string
	timeout time.Duration
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDirect builds the channel.
func NewDirect(cfg DirectConfig) *DirectChannel {
	proxies := cfg.Proxies
	if len(proxies) > maxProxies {
		proxies = proxies[:maxProxies]
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DirectChannel{
		proxies: proxies,
		timeout: timeout,
		logger:  cfg.Logger,
		sleep:   sleepCtx,
	}
}

func (d *DirectChannel) Name() string { return "direct" }

func (d *DirectChannel) Available() bool { return true }

func (d *DirectChannel) MinContentLen() int { return 1000 }

var impersonationHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
}

// Fetch tries each proxy in order, then a direct connection. A 429 honors
// Retry-After before moving on; the target's block status (999) advances
// to the next proxy immediately.
func (d *DirectChannel) Fetch(ctx context.Context, profileURL string) (string, error) {
	attempts := append(append([]string(nil), d.proxies...), "")
	var lastErr error
	for _, proxy := range attempts {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("direct fetch canceled: %w", err)
		}
		content, status, retryAfter, err := d.visit(ctx, profileURL, proxy)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case status == http.StatusOK:
			return content, nil
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			if retryAfter > 0 {
				if err := d.sleep(ctx, retryAfter); err != nil {
					return "", err
				}
			}
		case status == 999:
			// The target's bot-block status; this exit is burned.
			lastErr = fmt.Errorf("blocked (999)")
		default:
			lastErr = fmt.Errorf("status %d", status)
		}
	}
	if lastErr == nil {
		lastErr = ErrNoContent
	}
	return "", fmt.Errorf("direct fetch exhausted: %w", lastErr)
}

func (d *DirectChannel) visit(ctx context.Context, profileURL, proxy string) (string, int, time.Duration, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(d.timeout)
	collector.WithTransport(d.transport(proxy))

	var (
		content    string
		status     int
		retryAfter time.Duration
		visitErr   error
	)
	collector.OnRequest(func(r *colly.Request) {
		for k, v := range impersonationHeaders {
			r.Headers.Set(k, v)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		content = string(r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			status = r.StatusCode
			retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"))
			return
		}
		visitErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(profileURL)
	}()
	select {
	case <-ctx.Done():
		return "", 0, 0, fmt.Errorf("direct visit canceled: %w", ctx.Err())
	case err := <-done:
		if status != 0 {
			return content, status, retryAfter, nil
		}
		if visitErr != nil {
			return "", 0, 0, fmt.Errorf("direct visit: %w", visitErr)
		}
		if err != nil {
			return "", 0, 0, fmt.Errorf("direct visit: %w", err)
		}
		return content, http.StatusOK, 0, nil
	}
}

func (d *DirectChannel) transport(proxy string) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return t
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	// Bound the honor window so a hostile header cannot stall a batch.
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

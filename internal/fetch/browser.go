package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/search"
)

// BrowserConfig configures the browser pivot channel.
type BrowserConfig struct {
	Enabled          bool
	UserDataDir      string
	Headless         bool
	UserAgent        string
	NavTimeout       time.Duration
	BreakerThreshold int
	MaxRetries       int
	ChallengePolls   int
	ChallengePoll    time.Duration
	SearchEngineURL  string
	Logger           *zap.Logger
}

// BrowserChannel pivots through a general search engine with a persistent,
// profile-backed browser session: search for the profile, pick the best
// result link, navigate to it and read the rendered text. The session is
// long-lived and reused across fetches; recreating it per request would
// throw away the cookies and storage that keep the session trusted.
type BrowserChannel struct {
	cfg         BrowserConfig
	breaker     *Breaker
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
	rng         *rand.Rand
}

// overlayDismissSelectors are tried in order before falling back to Escape.
var overlayDismissSelectors = []string{
	`button[aria-label="Dismiss"]`,
	`button[data-tracking-control-name="public_profile_contextual-sign-in-modal_modal_dismiss"]`,
	`.modal__dismiss`,
	`.contextual-sign-in-modal__modal-dismiss`,
}

// NewBrowser builds the channel and its persistent allocator.
func NewBrowser(cfg BrowserConfig) *BrowserChannel {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.ChallengePolls <= 0 {
		cfg.ChallengePolls = 30
	}
	if cfg.ChallengePoll <= 0 {
		cfg.ChallengePoll = 1500 * time.Millisecond
	}
	if cfg.SearchEngineURL == "" {
		cfg.SearchEngineURL = "https://www.google.com"
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserChannel{
		cfg:         cfg,
		breaker:     NewBreaker(cfg.BreakerThreshold),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      cfg.Logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Close tears down the browser allocator.
func (b *BrowserChannel) Close() {
	b.allocCancel()
}

func (b *BrowserChannel) Name() string { return "browser" }

// Available reports false while the circuit is open; the chain then skips
// the channel entirely and it self-heals on the next successful fetch.
func (b *BrowserChannel) Available() bool {
	return b.cfg.Enabled && !b.breaker.Open()
}

func (b *BrowserChannel) MinContentLen() int { return 500 }

// Fetch retries the full pivot a bounded number of times with a randomized
// backoff between attempts.
func (b *BrowserChannel) Fetch(ctx context.Context, profileURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := 3*time.Second + time.Duration(b.rng.Int63n(int64(3*time.Second)))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("browser retry canceled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
		content, err := b.attempt(ctx, profileURL)
		if err == nil {
			b.breaker.Success()
			return content, nil
		}
		b.breaker.Failure()
		lastErr = err
		b.logger.Debug("browser attempt failed",
			zap.String("url", profileURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return "", fmt.Errorf("browser pivot: %w", lastErr)
}

func (b *BrowserChannel) attempt(ctx context.Context, profileURL string) (string, error) {
	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavTimeout+time.Duration(b.cfg.ChallengePolls)*b.cfg.ChallengePoll)
	defer cancel()
	go func() {
		<-ctx.Done()
		cancel()
	}()

	username := search.Username(profileURL)
	query := fmt.Sprintf(`site:linkedin.com/in/ "%s"`, username)
	searchURL := fmt.Sprintf("%s/search?q=%s", strings.TrimSuffix(b.cfg.SearchEngineURL, "/"), url.QueryEscape(query))

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("navigate search: %w", err)
	}

	if err := b.awaitReady(taskCtx); err != nil {
		return "", err
	}

	link, err := b.bestLink(taskCtx, username)
	if err != nil {
		return "", err
	}

	var content string
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return "", fmt.Errorf("navigate profile: %w", err)
	}

	b.dismissOverlays(taskCtx)

	if err := chromedp.Run(taskCtx,
		chromedp.Evaluate(`document.body.innerText`, &content),
	); err != nil {
		return "", fmt.Errorf("read rendered content: %w", err)
	}
	return content, nil
}

// awaitReady drives the {loading, challengeDetected, ready, failed} polling
// machine. In a headful session a challenge can be solved by an operator,
// so challengeDetected keeps polling until the budget runs out.
func (b *BrowserChannel) awaitReady(ctx context.Context) error {
	state := stateLoading
	for poll := 0; poll < b.cfg.ChallengePolls; poll++ {
		var bodyText string
		var hasSearchInput bool
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &bodyText),
			chromedp.Evaluate(`!!document.querySelector('input[name="q"], textarea[name="q"]')`, &hasSearchInput),
		); err != nil {
			return fmt.Errorf("poll page state: %w", err)
		}

		prev := state
		state = classifyPage(bodyText, hasSearchInput)
		if state == stateReady {
			return nil
		}
		if state == stateChallengeDetected && prev != stateChallengeDetected {
			b.logger.Warn("challenge detected, waiting for it to clear")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("page state poll canceled: %w", ctx.Err())
		case <-time.After(b.cfg.ChallengePoll):
		}
	}
	return fmt.Errorf("page never became ready (last state %s)", state)
}

// bestLink picks the result pointing at the exact username when present,
// otherwise the first profile link on the page.
func (b *BrowserChannel) bestLink(ctx context.Context, username string) (string, error) {
	var links []string
	script := `Array.from(document.querySelectorAll('a[href*="linkedin.com/in/"]')).map(a => a.href)`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &links)); err != nil {
		return "", fmt.Errorf("collect result links: %w", err)
	}
	if len(links) == 0 {
		return "", ErrNoContent
	}
	for _, link := range links {
		if search.Username(link) == username {
			return link, nil
		}
	}
	return links[0], nil
}

// dismissOverlays clicks through the known dismiss selectors, then sends
// Escape for anything left. Failures are ignored; an overlay that stays up
// just degrades the rendered text.
func (b *BrowserChannel) dismissOverlays(ctx context.Context) {
	for _, sel := range overlayDismissSelectors {
		clickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		cancel()
	}
	_ = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchKeyEvent(input.KeyDown).
			WithKey("Escape").
			WithCode("Escape").
			Do(ctx)
	}))
}

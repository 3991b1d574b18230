package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

// Fetcher returns the visible text of web pages using a headless browser
// that is started on first use.
type Fetcher struct {
	settings taskconfig.BrowserSettings

	mu      sync.Mutex
	browser *rod.Browser
	cleanup func()
}

// NewFetcher creates a fetcher. The browser always runs headless.
func NewFetcher(settings taskconfig.BrowserSettings) *Fetcher {
	settings.Headless = true
	return &Fetcher{settings: settings}
}

// Fetch loads url and returns the text of its body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	b, err := f.ensure(ctx)
	if err != nil {
		return "", err
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx).Timeout(NavigationTimeout)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("load %s: %w", url, err)
	}
	body, err := p.Element("body")
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return strings.TrimSpace(text), nil
}

// Close stops the browser.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.cleanup()
	f.browser, f.cleanup = nil, nil
	return err
}

func (f *Fetcher) ensure(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}
	b, cleanup, err := connect(ctx, f.settings)
	if err != nil {
		return nil, err
	}
	f.browser, f.cleanup = b, cleanup
	return b, nil
}

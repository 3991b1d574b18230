// Package browser drives a Chrome page through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

// ErrNotLaunched is returned for actions before Launch.
var ErrNotLaunched = errors.New("browser is not launched")

// NavigationTimeout bounds page loads.
const NavigationTimeout = 30 * time.Second

// Session is a single browser page shared by the browser_action tool.
type Session struct {
	settings taskconfig.BrowserSettings
	logger   *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	cleanup func()
}

// NewSession creates an idle session.
func NewSession(settings taskconfig.BrowserSettings, logger *slog.Logger) *Session {
	return &Session{settings: settings, logger: logger}
}

// Launch opens url in a fresh page, starting the browser if needed.
func (s *Session) Launch(ctx context.Context, url string) (taskconfig.BrowserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		b, cleanup, err := connect(ctx, s.settings)
		if err != nil {
			return taskconfig.BrowserState{}, err
		}
		s.browser, s.cleanup = b, cleanup
	}
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return taskconfig.BrowserState{}, fmt.Errorf("create page: %w", err)
	}
	if s.settings.ViewportWidth > 0 && s.settings.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             s.settings.ViewportWidth,
			Height:            s.settings.ViewportHeight,
			DeviceScaleFactor: 1,
		}).Call(page); err != nil && s.logger != nil {
			s.logger.Warn("set viewport failed", "error", err)
		}
	}
	s.page = page
	if err := page.Context(ctx).Timeout(NavigationTimeout).Navigate(url); err != nil {
		return taskconfig.BrowserState{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	_ = page.Context(ctx).Timeout(NavigationTimeout).WaitLoad()
	return s.stateLocked(ctx)
}

// Click clicks at coordinate "x,y" in CSS pixels.
func (s *Session) Click(ctx context.Context, coordinate string) (taskconfig.BrowserState, error) {
	x, y, err := ParseCoordinate(coordinate)
	if err != nil {
		return taskconfig.BrowserState{}, err
	}
	return s.act(ctx, func(p *rod.Page) error {
		if err := p.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
			return err
		}
		return p.Mouse.Click(proto.InputMouseButtonLeft, 1)
	})
}

// Type inserts text at the focused element.
func (s *Session) Type(ctx context.Context, text string) (taskconfig.BrowserState, error) {
	return s.act(ctx, func(p *rod.Page) error {
		return p.InsertText(text)
	})
}

// Scroll scrolls one viewport height down or up.
func (s *Session) Scroll(ctx context.Context, down bool) (taskconfig.BrowserState, error) {
	offset := float64(s.settings.ViewportHeight)
	if offset <= 0 {
		offset = 600
	}
	if !down {
		offset = -offset
	}
	return s.act(ctx, func(p *rod.Page) error {
		return p.Mouse.Scroll(0, offset, 1)
	})
}

// Close closes the page and the browser.
func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
		s.page = nil
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
		s.browser = nil
	}
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return errors.Join(errs...)
}

func (s *Session) act(ctx context.Context, fn func(*rod.Page) error) (taskconfig.BrowserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return taskconfig.BrowserState{}, ErrNotLaunched
	}
	if err := fn(s.page.Context(ctx)); err != nil {
		return taskconfig.BrowserState{}, err
	}
	// let the page react before capturing it
	_ = s.page.Context(ctx).Timeout(time.Second).WaitStable(300 * time.Millisecond)
	return s.stateLocked(ctx)
}

func (s *Session) stateLocked(ctx context.Context) (taskconfig.BrowserState, error) {
	page := s.page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return taskconfig.BrowserState{}, fmt.Errorf("page info: %w", err)
	}
	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return taskconfig.BrowserState{}, fmt.Errorf("screenshot: %w", err)
	}
	return taskconfig.BrowserState{URL: info.URL, Title: info.Title, Screenshot: shot}, nil
}

// ParseCoordinate parses "x,y".
func ParseCoordinate(coordinate string) (float64, float64, error) {
	xs, ys, ok := strings.Cut(coordinate, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid coordinate %q: want x,y", coordinate)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid coordinate %q: %w", coordinate, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid coordinate %q: %w", coordinate, err)
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("invalid coordinate %q: negative value", coordinate)
	}
	return x, y, nil
}

// connect attaches to RemoteURL or launches a local browser. cleanup stops
// a launched browser process.
func connect(ctx context.Context, settings taskconfig.BrowserSettings) (*rod.Browser, func(), error) {
	controlURL := settings.RemoteURL
	cleanup := func() {}
	if controlURL == "" {
		l := launcher.New().Headless(settings.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		cleanup = l.Cleanup
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}
	// later calls pass their own context
	return b.Context(context.Background()), cleanup, nil
}

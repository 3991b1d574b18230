// Package mcphub keeps client sessions to external MCP servers and calls
// their tools and resources.
package mcphub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/codex-k8s/toolflow/internal/security"
)

var (
	// ErrUnknownServer is returned for a server that is not connected.
	ErrUnknownServer = errors.New("mcp server not connected")
	// ErrToolFailed wraps results the server flagged as errors.
	ErrToolFailed = errors.New("mcp tool returned an error")
)

// DefaultTimeout bounds a single call when the server sets none.
const DefaultTimeout = time.Minute

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	// Name identifies the server in instructions.
	Name string
	// Command starts a stdio server. Mutually exclusive with URL.
	Command string
	// Args are command arguments.
	Args []string
	// Env adds environment variables to the command.
	Env map[string]string
	// URL is a streamable HTTP endpoint.
	URL string
	// Headers are sent with every HTTP request.
	Headers map[string]string
	// Timeout bounds each call.
	Timeout time.Duration
	// Disabled skips the server.
	Disabled bool
}

// Hub owns the sessions.
type Hub struct {
	client *mcp.Client
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	cs      *mcp.ClientSession
	timeout time.Duration
}

// New creates a hub identifying itself as name/version.
func New(name, version string, logger *slog.Logger) *Hub {
	return &Hub{
		client:   mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil),
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Connect connects to every enabled server concurrently. Servers that fail
// are logged and reported in the joined error; the others stay usable.
func (h *Hub) Connect(ctx context.Context, servers []ServerConfig) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		if srv.Disabled {
			continue
		}
		g.Go(func() error {
			transport, err := transportFor(srv)
			if err == nil {
				err = h.Attach(gctx, srv.Name, transport, srv.Timeout)
			}
			if err != nil {
				if h.logger != nil {
					h.logger.Warn("mcp server unavailable", "server", srv.Name, "error", err)
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("connect %s: %w", srv.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Attach connects to a server over transport and registers it under name,
// replacing an existing session.
func (h *Hub) Attach(ctx context.Context, name string, transport mcp.Transport, timeout time.Duration) error {
	cs, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	h.mu.Lock()
	prev := h.sessions[name]
	h.sessions[name] = &session{cs: cs, timeout: timeout}
	h.mu.Unlock()
	if prev != nil {
		_ = prev.cs.Close()
	}
	if h.logger != nil {
		h.logger.Info("mcp server connected", "server", name)
	}
	return nil
}

// ServerNames returns the connected servers, sorted.
func (h *Hub) ServerNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.sessions))
	for name := range h.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool calls tool on server and returns its text output.
func (h *Hub) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	s, err := h.session(server)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if h.logger != nil {
		h.logger.Debug("mcp call tool", "server", server, "tool", tool, "arguments", security.RedactArguments(args))
	}
	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s on %s: %w", tool, server, err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return text, fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	return text, nil
}

// ReadResource reads uri from server and returns its text contents.
func (h *Hub) ReadResource(ctx context.Context, server, uri string) (string, error) {
	s, err := h.session(server)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return "", fmt.Errorf("read %s on %s: %w", uri, server, err)
	}
	parts := make([]string, 0, len(res.Contents))
	for _, c := range res.Contents {
		parts = append(parts, resourceText(c))
	}
	return strings.Join(parts, "\n\n"), nil
}

// Close closes every session.
func (h *Hub) Close() error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		if err := s.cs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) session(name string) (*session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	return s, nil
}

func transportFor(srv ServerConfig) (mcp.Transport, error) {
	switch {
	case srv.Command != "" && srv.URL != "":
		return nil, errors.New("command and url are mutually exclusive")
	case srv.Command != "":
		cmd := exec.Command(srv.Command, srv.Args...)
		cmd.Env = os.Environ()
		for k, v := range srv.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case srv.URL != "":
		client := &http.Client{Transport: headerTransport{headers: srv.Headers, next: http.DefaultTransport}}
		return &mcp.StreamableClientTransport{Endpoint: srv.URL, HTTPClient: client}, nil
	}
	return nil, errors.New("either command or url is required")
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		r = r.Clone(r.Context())
		for k, v := range t.headers {
			r.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(r)
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, "[image: "+v.MIMEType+"]")
		case *mcp.AudioContent:
			parts = append(parts, "[audio: "+v.MIMEType+"]")
		case *mcp.EmbeddedResource:
			if v.Resource != nil {
				parts = append(parts, resourceText(v.Resource))
			}
		case *mcp.ResourceLink:
			parts = append(parts, "[resource: "+v.URI+"]")
		}
	}
	return strings.Join(parts, "\n")
}

func resourceText(c *mcp.ResourceContents) string {
	if c.Text != "" {
		return c.Text
	}
	if len(c.Blob) > 0 {
		return fmt.Sprintf("[binary %s: %d bytes]", c.MIMEType, len(c.Blob))
	}
	return ""
}

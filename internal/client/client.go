package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrStreamBroken is returned when the connection fails in the middle of a build
var ErrStreamBroken = errors.New("failed to read build event stream")

// StatusError is returned when the build endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("build endpoint returned %s", e.Status)
	}

	return fmt.Sprintf("build endpoint returned %s: %s", e.Status, e.Body)
}

// Config holds client configuration
type Config struct {
	BaseURL        string
	BuildToken     string
	ConnectTimeout time.Duration
	UserAgent      string
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://mybinder.org/",
		ConnectTimeout: 30 * time.Second,
		UserAgent:      "binderlaunch",
		Logger:         slog.Default(),
	}
}

// Client talks to the build endpoint of a BinderHub-style service
type Client struct {
	endpoint   *url.URL
	buildToken string
	userAgent  string
	http       *http.Client
	logger     *slog.Logger
}

// New creates a client for the service at cfg.BaseURL
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", cfg.BaseURL, err)
	}

	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.ConnectTimeout
		// no overall timeout: a build can stream for a long time
		httpClient = &http.Client{Transport: transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   BuildEndpoint(base),
		buildToken: cfg.BuildToken,
		userAgent:  cfg.UserAgent,
		http:       httpClient,
		logger:     logger,
	}, nil
}

// BuildEndpoint resolves "build/" against base
func BuildEndpoint(base *url.URL) *url.URL {
	return base.ResolveReference(&url.URL{Path: "build/"})
}

// BuildURL returns the stream URL for a build specification
func (c *Client) BuildURL(buildSpec string) (*url.URL, error) {
	u, err := url.Parse(c.endpoint.String() + strings.TrimLeft(buildSpec, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to build stream url for %q: %w", buildSpec, err)
	}

	if c.buildToken != "" {
		q := u.Query()
		q.Set("build_token", c.buildToken)
		u.RawQuery = q.Encode()
	}

	return u, nil
}

// Open starts a build and returns its event stream. The stream is bound to
// ctx: cancelling ctx ends the stream.
func (c *Client) Open(ctx context.Context, buildSpec string) (*Stream, error) {
	u, err := c.BuildURL(buildSpec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("opening build stream", "url", redactToken(u))

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to build endpoint: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		cancel()

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return &Stream{
		body:   resp.Body,
		reader: newSSEReader(resp.Body),
		cancel: cancel,
		logger: c.logger,
	}, nil
}

func redactToken(u *url.URL) string {
	if u.Query().Get("build_token") == "" {
		return u.String()
	}

	clone := *u
	q := clone.Query()
	q.Set("build_token", "REDACTED")
	clone.RawQuery = q.Encode()

	return clone.String()
}

// Stream is a finite, non-restartable sequence of build events
type Stream struct {
	body   io.ReadCloser
	reader *sseReader
	cancel context.CancelFunc
	logger *slog.Logger

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// Next returns the next event, or io.EOF when the server ends the stream.
// Payloads that are not valid JSON are logged and skipped.
func (s *Stream) Next() (Event, error) {
	for {
		data, err := s.reader.next()
		if err != nil {
			if errors.Is(err, io.EOF) || s.isClosed() {
				return Event{}, io.EOF
			}

			return Event{}, fmt.Errorf("%w: %w", ErrStreamBroken, err)
		}

		ev, err := ParseEvent([]byte(data))
		if err != nil {
			s.logger.Warn("skipping malformed build event", "data", data, "error", err)
			continue
		}

		return ev, nil
	}
}

// Close ends the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		err = s.body.Close()
	})

	return err
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

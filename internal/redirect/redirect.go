package redirect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"runtime"
	"strings"

	"github.com/inovacc/binderlaunch/pkg/exec"
)

// ErrNoServerURL is returned when the ready event carries no server URL
var ErrNoServerURL = errors.New("ready event has no server url")

// URL resolves urlPath against serverURL and appends the token as the "token"
// query parameter, the same way a browser resolves a relative link.
func URL(serverURL, urlPath, token string) (string, error) {
	if serverURL == "" {
		return "", ErrNoServerURL
	}

	base, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url %q: %w", serverURL, err)
	}

	if !base.IsAbs() {
		return "", fmt.Errorf("server url %q is not absolute", serverURL)
	}

	ref, err := url.Parse(urlPath)
	if err != nil {
		return "", fmt.Errorf("failed to parse url path %q: %w", urlPath, err)
	}

	target := base.ResolveReference(ref)

	target.RawQuery = appendParam(target.RawQuery, "token", token)

	return target.String(), nil
}

// appendParam adds key=value after the existing parameters of rawQuery.
// Existing parameters keep their order and are re-encoded in form style,
// so "reset" becomes "reset=".
func appendParam(rawQuery, key, value string) string {
	var pairs []string

	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}

		k, v, _ := strings.Cut(part, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}

		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}

		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}

	pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(value))

	return strings.Join(pairs, "&")
}

// Navigator sends the user to a running server
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc adapts a function to a Navigator
type NavigatorFunc func(ctx context.Context, target string) error

func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// Browser opens the target in the platform's default browser
type Browser struct {
	// GOOS overrides runtime.GOOS, mostly for tests
	GOOS string
}

// Command returns the program and arguments used to open target
func (b Browser) Command(target string) (string, []string, error) {
	goos := b.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	switch goos {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("opening a browser is not supported on %s", goos)
	}
}

// Navigate starts the browser and does not wait for it. The process is not
// bound to ctx so it outlives the build session.
func (b Browser) Navigate(_ context.Context, target string) error {
	name, args, err := b.Command(target)
	if err != nil {
		return err
	}

	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("no browser opener found: %w", err)
	}

	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

// Printer writes the target to w instead of opening it
type Printer struct {
	W io.Writer
}

func (p Printer) Navigate(_ context.Context, target string) error {
	_, err := fmt.Fprintf(p.W, "Server is ready: %s\n", target)
	return err
}

// Fallback tries Primary and, if it fails, hands the target to Secondary
type Fallback struct {
	Primary   Navigator
	Secondary Navigator
}

func (f Fallback) Navigate(ctx context.Context, target string) error {
	err := f.Primary.Navigate(ctx, target)
	if err == nil || f.Secondary == nil {
		return err
	}

	if err2 := f.Secondary.Navigate(ctx, target); err2 != nil {
		return errors.Join(err, err2)
	}

	return nil
}

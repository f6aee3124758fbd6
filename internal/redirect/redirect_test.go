package redirect

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		urlPath   string
		token     string
		want      string
	}{
		{
			name:      "absolute path",
			serverURL: "https://host/",
			urlPath:   "/user/x/lab",
			token:     "abc",
			want:      "https://host/user/x/lab?token=abc",
		},
		{
			name:      "relative path under user server",
			serverURL: "https://hub.example.org/user/jovyan-abc/",
			urlPath:   "doc/tree/index.ipynb",
			token:     "t0k",
			want:      "https://hub.example.org/user/jovyan-abc/doc/tree/index.ipynb?token=t0k",
		},
		{
			name:      "empty path keeps server url",
			serverURL: "https://hub.example.org/user/jovyan-abc/",
			urlPath:   "",
			token:     "t0k",
			want:      "https://hub.example.org/user/jovyan-abc/?token=t0k",
		},
		{
			name:      "path with its own query",
			serverURL: "https://host/user/x/",
			urlPath:   "lab?reset",
			token:     "abc",
			want:      "https://host/user/x/lab?reset=&token=abc",
		},
		{
			name:      "query order is kept and token goes last",
			serverURL: "https://host/user/x/",
			urlPath:   "lab?z=1&a=2",
			token:     "abc",
			want:      "https://host/user/x/lab?z=1&a=2&token=abc",
		},
		{
			name:      "repeated keys are kept",
			serverURL: "https://host/user/x/",
			urlPath:   "tree?f=b&f=a&token=old",
			token:     "new",
			want:      "https://host/user/x/tree?f=b&f=a&token=old&token=new",
		},
		{
			name:      "token is escaped",
			serverURL: "https://host/",
			urlPath:   "",
			token:     "a b&c",
			want:      "https://host/?token=a+b%26c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URL(tt.serverURL, tt.urlPath, tt.token)
			if err != nil {
				t.Fatalf("URL() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURL_Errors(t *testing.T) {
	if _, err := URL("", "/lab", "abc"); !errors.Is(err, ErrNoServerURL) {
		t.Errorf("expected ErrNoServerURL, got %v", err)
	}

	if _, err := URL("/relative/only", "/lab", "abc"); err == nil {
		t.Error("expected error for relative server url")
	}

	if _, err := URL("https://host/", "%zz", "abc"); err == nil {
		t.Error("expected error for malformed path")
	}
}

func TestBrowser_Command(t *testing.T) {
	tests := []struct {
		goos    string
		name    string
		wantErr bool
	}{
		{goos: "darwin", name: "open"},
		{goos: "linux", name: "xdg-open"},
		{goos: "windows", name: "rundll32"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args, err := Browser{GOOS: tt.goos}.Command("https://host/")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Command() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				return
			}

			if name != tt.name {
				t.Errorf("expected %q, got %q", tt.name, name)
			}

			if args[len(args)-1] != "https://host/" {
				t.Errorf("expected target as last argument, got %v", args)
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	if err := (Printer{W: &buf}).Navigate(context.Background(), "https://host/?token=abc"); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "https://host/?token=abc") {
		t.Errorf("expected url in output, got %q", buf.String())
	}
}

func TestFallback(t *testing.T) {
	var got string

	failing := NavigatorFunc(func(context.Context, string) error { return errors.New("no browser") })
	recording := NavigatorFunc(func(_ context.Context, target string) error {
		got = target
		return nil
	})

	nav := Fallback{Primary: failing, Secondary: recording}
	if err := nav.Navigate(context.Background(), "https://host/"); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}

	if got != "https://host/" {
		t.Errorf("secondary navigator not called, got %q", got)
	}

	if err := (Fallback{Primary: failing}).Navigate(context.Background(), "x"); err == nil {
		t.Error("expected error without secondary")
	}
}

func TestBrowser_NavigateUnsupported(t *testing.T) {
	if err := (Browser{GOOS: "plan9"}).Navigate(context.Background(), "https://host/"); err == nil {
		t.Fatal("expected error on an unsupported platform")
	}
}

func TestBrowser_FallsBackToPrinter(t *testing.T) {
	var buf bytes.Buffer

	nav := Fallback{Primary: Browser{GOOS: "plan9"}, Secondary: Printer{W: &buf}}
	if err := nav.Navigate(context.Background(), "https://host/?token=abc"); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "https://host/?token=abc") {
		t.Errorf("expected printed url, got %q", buf.String())
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/inovacc/binderlaunch/internal/buildspec"
	"github.com/inovacc/binderlaunch/internal/client"
	"github.com/inovacc/binderlaunch/internal/config"
	"github.com/inovacc/binderlaunch/internal/database"
	"github.com/inovacc/binderlaunch/internal/history"
	"github.com/inovacc/binderlaunch/internal/logging"
	"github.com/inovacc/binderlaunch/internal/logsink"
	"github.com/inovacc/binderlaunch/internal/progress"
	"github.com/inovacc/binderlaunch/internal/redirect"
	"github.com/inovacc/binderlaunch/internal/session"
	"github.com/inovacc/binderlaunch/internal/tui"
	"github.com/inovacc/binderlaunch/pkg/exec"
	"github.com/spf13/cobra"
)

// launchCmd represents the launch command
var launchCmd = &cobra.Command{
	Use:   "launch <spec>",
	Short: "Build a repository and open the running server",
	Long: `Ask the build service to build a repository, follow the build and open
the server once it is ready.

The build log is hidden while the build is going well; press 'l' to show
it. It is shown automatically when the build fails. Every launch is
recorded and can be inspected later with 'binderlaunch history'.

Examples:
  binderlaunch launch gh/binder-examples/requirements/HEAD
  binderlaunch launch gh/binder-examples/requirements/HEAD --labpath index.ipynb
  binderlaunch launch gl/group/project/v1.2.0 --base-url https://binder.example.org/
  binderlaunch launch gh/org/repo/main --no-browser --no-tui`,
	Args: cobra.ExactArgs(1),
	RunE: runLaunch,
}

var (
	launchURLPath   string
	launchLabPath   string
	launchFilePath  string
	launchNoBrowser bool
)

func init() {
	rootCmd.AddCommand(launchCmd)
	addLaunchFlags(launchCmd)
}

func addLaunchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&launchURLPath, "urlpath", "", "Path to open on the server, relative to its root")
	cmd.Flags().StringVar(&launchLabPath, "labpath", "", "File to open in JupyterLab (sets urlpath to doc/tree/<labpath>)")
	cmd.Flags().StringVar(&launchFilePath, "filepath", "", "File to open in the classic notebook (sets urlpath to tree/<filepath>)")
	cmd.Flags().BoolVar(&launchNoBrowser, "no-browser", false, "Print the server URL instead of opening a browser")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if launchNoBrowser {
		cfg.OpenBrowser = false
	}

	spec, err := buildspec.New(args[0], buildspec.RuntimeParamsFromOptions(launchURLPath, launchLabPath, launchFilePath))
	if err != nil {
		return fmt.Errorf("invalid spec %q: %w", args[0], err)
	}

	useTUI := IsTUIEnabled(cfg)

	logger, closeLog, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, useTUI)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()

	slog.SetDefault(logger)
	exec.SetCommandDebug(cfg.LogLevel == "debug")

	c, err := client.New(client.Config{
		BaseURL:        cfg.BaseURL,
		BuildToken:     cfg.BuildToken,
		ConnectTimeout: cfg.ConnectTimeout,
		UserAgent:      "binderlaunch",
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create build client: %w", err)
	}

	recorder, closeHistory := openHistory(cmd.Context(), cfg.BaseURL, logger)
	defer closeHistory()

	logger.Debug("launching", "spec", spec.String(), "provider", spec.Provider(), "ref", spec.Ref(), "ref_kind", spec.RefKind().String())

	l := launcher{
		streamer: session.ClientStreamer{Client: c},
		recorder: recorder,
		logger:   logger,
		browser:  cfg.OpenBrowser,
	}

	if useTUI {
		return l.runTUI(cmd.Context(), spec)
	}

	configureColors(os.Stdout)

	return l.runPlain(cmd.Context(), spec, cmd.OutOrStdout())
}

// newLogger keeps diagnostics off the terminal while the TUI owns it
func newLogger(stderr io.Writer, level string, useTUI bool) (*slog.Logger, func() error, error) {
	if useTUI {
		return logging.NewFile(config.GetLogFilePath(), level)
	}

	logger, err := logging.New(stderr, level)
	if err != nil {
		return nil, nil, err
	}

	return logger, func() error { return nil }, nil
}

// openHistory opens the launch history and the log archive. History is a
// convenience, so a failure only disables it.
func openHistory(ctx context.Context, baseURL string, logger *slog.Logger) (*history.Recorder, func()) {
	storage, err := database.NewStorage(config.GetHistoryPath())
	if err != nil {
		logger.Warn("launch history disabled", "error", err)
		return nil, func() {}
	}

	archive, err := database.NewDatabase(ctx, config.GetLogArchivePath())
	if err != nil {
		logger.Warn("build log archive disabled", "error", err)
		archive = nil
	}

	recorder := history.NewRecorder(storage, archive, baseURL, logger)

	closeFn := func() {
		recorder.Flush()

		_ = storage.Close()
		if archive != nil {
			_ = archive.Close()
		}
	}

	return recorder, closeFn
}

type launcher struct {
	streamer session.Streamer
	recorder *history.Recorder
	logger   *slog.Logger
	browser  bool

	// opener replaces the platform browser, nil means redirect.Browser
	opener redirect.Navigator
}

func (l launcher) browserNavigator() redirect.Navigator {
	if l.opener != nil {
		return l.opener
	}

	return redirect.Browser{}
}

func (l launcher) controller(sink logsink.Sink, nav redirect.Navigator, observers ...session.Observer) *session.Controller {
	if l.recorder != nil {
		// the recorder must see the new session before any log text
		observers = append([]session.Observer{l.recorder.Observe}, observers...)
		sink = logsink.Tee{sink, l.recorder}
	}

	return session.NewController(session.Config{
		Streamer:  l.streamer,
		Sink:      sink,
		Navigator: nav,
		Observers: observers,
		Logger:    l.logger,
	})
}

func (l launcher) runTUI(ctx context.Context, spec buildspec.Spec) error {
	var ctl *session.Controller

	ui := tui.New(spec, func() { ctl.Cancel() })

	// the URL is part of the final screen, so only a real browser is used here
	var nav redirect.Navigator
	if l.browser {
		nav = l.browserNavigator()
	}

	ctl = l.controller(ui, nav, ui.Observe)

	type result struct {
		sess *session.Session
		err  error
	}

	done := make(chan result, 1)

	go func() {
		sess, err := ctl.Launch(ctx, spec)
		if sess != nil {
			ui.Done(sess.Snapshot(), err)
		} else {
			ui.Done(session.Snapshot{Spec: spec}, err)
		}

		done <- result{sess: sess, err: err}
	}()

	uiErr := ui.Start(ctx)

	// the user may have quit the display before the session ended
	ctl.Cancel()

	res := <-done
	if uiErr != nil {
		return fmt.Errorf("failed to run terminal UI: %w", uiErr)
	}

	return res.err
}

func (l launcher) runPlain(ctx context.Context, spec buildspec.Spec, out io.Writer) error {
	printer := redirect.Printer{W: out}

	var (
		nav    redirect.Navigator = printer
		opened bool
	)

	if l.browser {
		browser := l.browserNavigator()
		primary := redirect.NavigatorFunc(func(ctx context.Context, target string) error {
			if err := browser.Navigate(ctx, target); err != nil {
				return err
			}

			opened = true

			return nil
		})

		nav = redirect.Fallback{Primary: primary, Secondary: printer}
	}

	_, _ = fmt.Fprintf(out, "Launching %s\n", spec.String())

	ctl := l.controller(logsink.NewWriter(out, nil), nav, phasePrinter(out))

	sess, err := ctl.Launch(ctx, spec)

	switch {
	case err == nil && opened:
		_, _ = fmt.Fprintf(out, "Opened %s in the browser\n", sess.RedirectURL())
	case errors.Is(err, session.ErrBuildFailed):
		_, _ = fmt.Fprintln(out, "Build failed, see the log above")
	}

	return err
}

// phasePrinter reports each state change on its own line
func phasePrinter(out io.Writer) session.Observer {
	last := progress.NotStarted

	return func(snap session.Snapshot) {
		if snap.State == last {
			return
		}

		last = snap.State

		style := tui.PhaseStyle
		switch snap.State {
		case progress.Success:
			style = tui.SuccessStyle
		case progress.Failed:
			style = tui.ErrorStyle
		}

		_, _ = fmt.Fprintf(out, "\n%s\n", style.Render(fmt.Sprintf("[%s]", snap.State)))
	}
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/inovacc/binderlaunch/internal/config"
	"github.com/inovacc/binderlaunch/internal/database"
	"github.com/inovacc/binderlaunch/internal/history"
	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previous launches",
	Long: `Show launches recorded by binderlaunch and the build logs they produced.

Launch ids may be shortened to any unique prefix.

Examples:
  binderlaunch history list
  binderlaunch history show 3f2a
  binderlaunch history logs 3f2a
  binderlaunch history clear`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded launches, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the details of one launch",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Print the archived build log of one launch",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryLogs,
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove one launch and its build log",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRemove,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every recorded launch and build log",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyLogsCmd, historyRemoveCmd, historyClearCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum number of launches to show (0 = all)")
}

type stores struct {
	storage *database.Storage
	archive *database.Database
}

func openStores(ctx context.Context) (*stores, error) {
	storage, err := database.NewStorage(config.GetHistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open launch history: %w", err)
	}

	archive, err := database.NewDatabase(ctx, config.GetLogArchivePath())
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("failed to open build log archive: %w", err)
	}

	return &stores{storage: storage, archive: archive}, nil
}

func (s *stores) Close() {
	_ = s.storage.Close()
	_ = s.archive.Close()
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	s, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	launches, err := s.storage.ListLaunches(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list launches: %w", err)
	}

	if len(launches) == 0 {
		cmd.Println("No launches recorded")
		return nil
	}

	return writeLaunchTable(cmd.OutOrStdout(), launches)
}

func writeLaunchTable(out io.Writer, launches []*database.Launch) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tSTATE\tDURATION\tSPEC")

	for _, l := range launches {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(l.ID),
			l.StartedAt.Format("2006-01-02 15:04"),
			l.State,
			formatDuration(l.Duration()),
			l.BuildSpec,
		)
	}

	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	s, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	launch, err := s.storage.GetLaunch(args[0])
	if err != nil {
		return err
	}

	lines, err := s.archive.Queries().CountLogLines(cmd.Context(), launch.ID)
	if err != nil {
		return err
	}

	writeLaunch(cmd.OutOrStdout(), launch, lines)

	return nil
}

func writeLaunch(out io.Writer, l *database.Launch, logLines int64) {
	field := func(name, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(out, "%-12s %s\n", name+":", value)
		}
	}

	field("ID", l.ID)
	field("Spec", l.BuildSpec)
	field("URL path", l.URLPath)
	field("Service", l.BaseURL)
	field("State", l.State)
	field("Image", l.ImageName)
	field("Server", l.ServerURL)
	field("Error", l.Error)
	field("Started", l.StartedAt.Format(time.RFC3339))

	if !l.FinishedAt.IsZero() {
		field("Finished", l.FinishedAt.Format(time.RFC3339))
		field("Duration", formatDuration(l.Duration()))
	}

	field("Log lines", fmt.Sprintf("%d", logLines))
}

func runHistoryLogs(cmd *cobra.Command, args []string) error {
	s, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	launch, err := s.storage.GetLaunch(args[0])
	if err != nil {
		return err
	}

	lines, err := s.archive.Queries().ListLogLines(cmd.Context(), launch.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, line := range lines {
		_, _ = io.WriteString(out, line.Message)
	}

	return nil
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	s, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	launch, err := s.storage.GetLaunch(args[0])
	if err != nil {
		return err
	}

	if err := history.Forget(cmd.Context(), s.storage, s.archive, launch.ID); err != nil {
		return fmt.Errorf("failed to remove launch: %w", err)
	}

	cmd.Printf("Removed launch %s\n", shortID(launch.ID))

	return nil
}

func runHistoryClear(cmd *cobra.Command, _ []string) error {
	s, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	count, err := s.storage.CountLaunches()
	if err != nil {
		return err
	}

	if err := history.Clear(cmd.Context(), s.storage, s.archive); err != nil {
		return err
	}

	cmd.Printf("Removed %d launches\n", count)

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}

	return d.Round(time.Second).String()
}

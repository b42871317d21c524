package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Iron-Ham/synapse/internal/config"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View core logs",
	Long: `View and filter the logs written by 'synapse run'.

The active log file and its rotated backups are read together and shown in
time order. Use flags to filter and format the output.

Examples:
  # Show the last 50 entries
  synapse logs

  # Follow one correlation chain end to end
  synapse logs --correlation 6f0c... -n 0

  # Only warnings and errors from the dispatcher
  synapse logs --level warn --component dispatcher

  # Export the last hour as CSV
  synapse logs --since 1h --format csv --output last-hour.csv`,
	RunE: runLogs,
}

var (
	logsDir         string
	logsTail        int
	logsLevel       string
	logsSince       string
	logsGrep        string
	logsComponent   string
	logsKind        string
	logsCorrelation string
	logsSubject     string
	logsFormat      string
	logsOutput      string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (e.g., dispatcher, monitor)")
	logsCmd.Flags().StringVar(&logsKind, "kind", "", "Filter by event kind")
	logsCmd.Flags().StringVar(&logsCorrelation, "correlation", "", "Filter by correlation ID")
	logsCmd.Flags().StringVar(&logsSubject, "subject", "", "Filter by subject ID")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format (text, json, csv)")
	logsCmd.Flags().StringVarP(&logsOutput, "output", "o", "", "Write to a file instead of stdout")
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: lipgloss.NewStyle().Foreground(mutedColor),
	logging.LevelInfo:  lipgloss.NewStyle(),
	logging.LevelWarn:  lipgloss.NewStyle().Foreground(warningColor),
	logging.LevelError: lipgloss.NewStyle().Foreground(dangerColor),
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logsDir
	if dir == "" {
		dir = config.Get().Logging.ResolveDir()
	}

	filter := logging.LogFilter{
		Component:       logsComponent,
		Kind:            logsKind,
		CorrelationID:   logsCorrelation,
		SubjectID:       logsSubject,
		MessageContains: logsGrep,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = time.Now().Add(-duration)
	}

	entries, err := logging.AggregateLogs(dir)
	if err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}
	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if logsOutput != "" {
		if err := logging.ExportLogEntries(entries, logsOutput, logsFormat); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", len(entries), logsOutput)
		return nil
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	if strings.EqualFold(logsFormat, "text") && styled {
		for _, e := range entries {
			fmt.Fprintln(out, levelStyles[e.Level].Render(logging.FormatEntry(e)))
		}
		return nil
	}
	return logging.WriteLogEntries(out, entries, logsFormat)
}

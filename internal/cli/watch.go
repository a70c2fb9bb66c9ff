package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// renderStatus colors a job status for table output.
func renderStatus(status models.JobStatus) string {
	switch status {
	case models.JobStatusCompleted:
		return defaultTheme.completedStyle().Render(string(status))
	case models.JobStatusFailed:
		return defaultTheme.errorStyle().Render(string(status))
	case models.JobStatusActive:
		return defaultTheme.statusStyle().Render(string(status))
	default:
		return string(status)
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch [connection-id]",
	Short: "Stream ingestion progress",
	Long: `Stream progress events from the server as they happen.

All events on the shared stream are shown; pass a connection ID to only
show events for that connection. Press Ctrl+C to stop watching; jobs
continue on the server.

Examples:
  dcup watch           # Watch everything
  dcup watch conn-1    # Watch a single connection`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectionID := ""
	if len(args) == 1 {
		connectionID = args[0]
	}

	err := watchConnection(ctx, connectionID)
	if ctx.Err() != nil {
		fmt.Println(defaultTheme.hintStyle().Render("\nStopped watching; jobs continue on the server."))
		return nil
	}
	return err
}

// watchConnection renders the progress stream, filtered to one connection
// when connectionID is non-empty.
func watchConnection(ctx context.Context, connectionID string) error {
	fmt.Println(defaultTheme.hintStyle().Render("Watching progress (Ctrl+C to stop)..."))

	return api.StreamProgress(ctx, func(event models.ProgressEvent) error {
		if connectionID != "" && event.ConnectionID != connectionID {
			return nil
		}
		fmt.Println(renderEvent(event))
		return nil
	})
}

// renderEvent formats one progress event as a single line.
func renderEvent(event models.ProgressEvent) string {
	var b strings.Builder

	if event.ConnectionID != "" {
		b.WriteString(defaultTheme.statusStyle().Render(fmt.Sprintf("[%s]", event.ConnectionID)))
		b.WriteString(" ")
	}
	b.WriteString(fmt.Sprintf("pages=%d", event.ProcessedPage))
	if len(event.FilesCompleted) > 0 {
		b.WriteString(" ")
		b.WriteString(defaultTheme.completedStyle().Render(fmt.Sprintf("done=%d", len(event.FilesCompleted))))
		b.WriteString(fmt.Sprintf(" (%s)", strings.Join(event.FilesCompleted, ", ")))
	}
	for _, failure := range event.FilesFailed {
		b.WriteString(" ")
		b.WriteString(defaultTheme.errorStyle().Render(fmt.Sprintf("✗ %s: %s", failure.FileName, failure.ErrorMessage)))
	}

	return b.String()
}

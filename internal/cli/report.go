package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))
)

// Report summarizes one benchmark run.
type Report struct {
	Name       string
	Engine     string
	Iterations int
	Elapsed    time.Duration
}

// TPS returns the number of transactions processed per second.
func (r Report) TPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Iterations) / r.Elapsed.Seconds()
}

// Render formats the report for the terminal.
func (r Report) Render() string {
	rows := [][2]string{
		{"engine", r.Engine},
		{"transactions", fmt.Sprintf("%d", r.Iterations)},
		{"elapsed", r.Elapsed.Round(time.Microsecond).String()},
		{"per tx", perTx(r).String()},
		{"throughput", fmt.Sprintf("%.1f tx/s", r.TPS())},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(r.Name))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(valueStyle.Render(row[1]))
		b.WriteString("\n")
	}
	return b.String()
}

func perTx(r Report) time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return (r.Elapsed / time.Duration(r.Iterations)).Round(time.Nanosecond)
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runLoop calls step n times and measures the elapsed time. A progress bar is
// drawn on progress when it is a terminal.
func runLoop(ctx context.Context, n int, progress io.Writer, description string, step func(ctx context.Context, i int) error) (time.Duration, error) {
	var bar *progressbar.ProgressBar
	if isTerminal(progress) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(50*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return time.Since(start), err
		}
		if err := step(ctx, i); err != nil {
			return time.Since(start), fmt.Errorf("iteration %d: %w", i, err)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	elapsed := time.Since(start)
	if bar != nil {
		_ = bar.Finish()
	}
	return elapsed, nil
}

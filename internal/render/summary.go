package render

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/lherron/tasksync/internal/domain"
)

var (
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Summary writes a human-readable account of a run. Color is used only
// when colorize is set.
func Summary(w io.Writer, r *domain.SyncResult, colorize bool) {
	paint := func(c *color.Color, format string, args ...interface{}) string {
		if !colorize {
			return fmt.Sprintf(format, args...)
		}
		c.EnableColor()
		return c.Sprintf(format, args...)
	}

	status := paint(green, "ok")
	if !r.Success {
		status = paint(red, "failed")
	} else if len(r.Errors) > 0 {
		status = paint(yellow, "ok with %d error(s)", len(r.Errors))
	}

	fmt.Fprintf(w, "%s %s %s\n", paint(bold, "%s", r.Kind), status, paint(dim, "(%s, run %s)", r.Duration.Round(time.Millisecond), shortID(r.RunUUID)))
	fmt.Fprintf(w, "  created:    %d\n", r.Created)
	fmt.Fprintf(w, "  updated:    %d\n", r.Updated)
	conflicts := fmt.Sprintf("%d", r.Conflicts)
	if r.Conflicts > 0 {
		conflicts = paint(yellow, "%d", r.Conflicts)
	}
	fmt.Fprintf(w, "  conflicts:  %s\n", conflicts)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  skipped:    %d\n", r.Skipped)
	}
	if r.Tombstoned > 0 || r.Pruned > 0 {
		fmt.Fprintf(w, "  tombstoned: %d\n", r.Tombstoned)
		fmt.Fprintf(w, "  pruned:     %d\n", r.Pruned)
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "  %s %s\n", paint(red, "error:"), msg)
	}
}

func shortID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

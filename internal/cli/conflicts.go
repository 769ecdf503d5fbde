package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/domain"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicts waiting for manual review",
	Long: `Lists conflicts logged by the manual_review strategy. Both task
versions were left untouched; review them with 'conflicts show' and
mark them handled with 'conflicts ack'.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.StateOnly(), runConflicts),
}

var conflictsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show both sides of a conflict as a unified diff",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.StateOnly(), runConflictsShow),
}

var conflictsAckCmd = &cobra.Command{
	Use:   "ack ID...",
	Short: "Mark conflicts as resolved",
	Args:  cobra.MinimumNArgs(1),
	RunE:  appctx.WithApp(appctx.StateOnly(), runConflictsAck),
}

var conflictsAll bool

func init() {
	rootCmd.AddCommand(conflictsCmd)
	conflictsCmd.AddCommand(conflictsShowCmd)
	conflictsCmd.AddCommand(conflictsAckCmd)

	conflictsCmd.Flags().BoolVarP(&conflictsAll, "all", "a", false, "Include resolved conflicts")
}

func runConflicts(app *appctx.App, cmd *cobra.Command, args []string) error {
	records, err := app.Store.Conflicts.List(cmd.Context(), conflictsAll)
	if err != nil {
		return exitError(1, err)
	}

	r, err := newRenderer(cmd, app.Config)
	if err != nil {
		return err
	}

	items := make([]interface{}, 0, len(records))
	rows := make([][]string, 0, len(records))
	for _, c := range records {
		items = append(items, c)
		resolved := "-"
		if c.ResolvedAt != nil {
			resolved = c.ResolvedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			c.ID,
			c.MappingUUID,
			string(c.Strategy),
			c.DetectedAt.Format(time.RFC3339),
			resolved,
		})
	}
	return r.Render(items, []string{"ID", "MAPPING", "STRATEGY", "DETECTED", "RESOLVED"}, rows)
}

func runConflictsShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	c, err := app.Store.Conflicts.Get(cmd.Context(), args[0])
	if err != nil {
		return exitError(1, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "conflict %s (mapping %s)\n", c.ID, c.MappingUUID)
	fmt.Fprintf(out, "detected: %s\n", c.DetectedAt.Format(time.RFC3339))
	if c.ResolvedAt != nil {
		fmt.Fprintf(out, "resolved: %s\n", c.ResolvedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	diff, err := conflictDiff(c)
	if err != nil {
		return exitError(1, err)
	}
	if diff == "" {
		fmt.Fprintln(out, "No differences.")
		return nil
	}
	fmt.Fprint(out, diff)
	return nil
}

func runConflictsAck(app *appctx.App, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, ref := range args {
		c, err := app.Store.Conflicts.Ack(cmd.Context(), ref, time.Now())
		if err != nil {
			return exitError(1, err)
		}
		fmt.Fprintf(out, "✓ Acknowledged %s\n", c.ID)
	}
	return nil
}

// conflictDiff renders the stored snapshots as a unified diff of their
// shared fields, backlog first.
func conflictDiff(c *domain.ConflictRecord) (string, error) {
	var a domain.BacklogTask
	if err := json.Unmarshal([]byte(c.Backlog), &a); err != nil {
		return "", fmt.Errorf("failed to decode backlog snapshot: %w", err)
	}
	var b domain.PlannerTask
	if err := json.Unmarshal([]byte(c.Planner), &b); err != nil {
		return "", fmt.Errorf("failed to decode planner snapshot: %w", err)
	}

	// Compare in backlog terms so status and priority line up.
	projected := domain.ProjectToBacklog(&b, &a)
	projected.UpdatedAt = b.UpdatedAt

	left, err := prettyJSON(&a)
	if err != nil {
		return "", err
	}
	right, err := prettyJSON(projected)
	if err != nil {
		return "", err
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(left),
		B:        difflib.SplitLines(right),
		FromFile: "backlog",
		ToFile:   "planner " + b.ID,
		Context:  3,
	})
}

func prettyJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.String(), nil
}

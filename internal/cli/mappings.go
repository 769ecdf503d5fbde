package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/store"
)

var mappingsCmd = &cobra.Command{
	Use:     "mappings",
	Aliases: []string{"ls"},
	Short:   "List backlog/planner task links",
	Long: `Lists the links between backlog tasks and planner tasks. Tombstoned
links (both tasks gone) are hidden unless --tombstones is given.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.StateOnly(), runMappings),
}

var mappingsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete tombstoned links older than --older-than",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.StateOnly(), runMappingsPrune),
}

var (
	mappingsTombstones bool
	pruneOlderThan     time.Duration
)

func init() {
	rootCmd.AddCommand(mappingsCmd)
	mappingsCmd.AddCommand(mappingsPruneCmd)

	mappingsCmd.Flags().BoolVar(&mappingsTombstones, "tombstones", false, "Include tombstoned links")
	mappingsPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Minimum tombstone age (default from tombstone_ttl_hours)")
}

func runMappings(app *appctx.App, cmd *cobra.Command, args []string) error {
	mappings, err := app.Store.Mappings.List(cmd.Context(), store.MappingFilter{IncludeTombstones: mappingsTombstones})
	if err != nil {
		return exitError(1, err)
	}

	r, err := newRenderer(cmd, app.Config)
	if err != nil {
		return err
	}

	items := make([]interface{}, 0, len(mappings))
	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		items = append(items, m)
		rows = append(rows, []string{
			m.ID,
			optionalInt(m.BacklogID),
			optionalString(m.PlannerID),
			m.LastSyncAt.Format(time.RFC3339),
			strconv.Itoa(m.ConflictCount),
			mappingState(m),
		})
	}
	return r.Render(items, []string{"ID", "BACKLOG", "PLANNER", "LAST_SYNC", "CONFLICTS", "STATE"}, rows)
}

func runMappingsPrune(app *appctx.App, cmd *cobra.Command, args []string) error {
	age := pruneOlderThan
	if age == 0 {
		age = app.Config.TombstoneTTL()
	}
	if age <= 0 {
		return exitError(2, fmt.Errorf("--older-than must be positive"))
	}

	pruned, err := app.Store.Mappings.PruneTombstones(cmd.Context(), time.Now().Add(-age))
	if err != nil {
		return exitError(1, err)
	}

	out := cmd.OutOrStdout()
	for _, m := range pruned {
		fmt.Fprintf(out, "pruned %s %s\n", m.ID, m.Key())
	}
	fmt.Fprintf(out, "Pruned %d tombstone(s) older than %s.\n", len(pruned), age)
	return nil
}

func mappingState(m *domain.TaskMapping) string {
	if m.Tombstoned() {
		return "tombstoned"
	}
	if m.BacklogID == nil || m.PlannerID == nil {
		return "pending"
	}
	return "linked"
}

func optionalInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func optionalString(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

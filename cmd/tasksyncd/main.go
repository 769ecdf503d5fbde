package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lherron/tasksync/internal/cli"
)

func main() {
	addr := flag.String("addr", os.Getenv("TASKSYNCD_ADDR"), "Status endpoint listen address (disabled when empty)")
	token := flag.String("token", os.Getenv("TASKSYNCD_TOKEN"), "Shared token for the status endpoint")
	dbPath := flag.String("db", "", "State database path override (defaults to config)")
	backlogPath := flag.String("backlog-db", "", "Backlog database path override")
	plannerPath := flag.String("planner", "", "Planner tasks.json path override")
	tag := flag.String("tag", "", "Planner tag override")
	strategy := flag.String("strategy", "", "Conflict strategy override")
	interval := flag.Duration("interval", 0, "Sync interval (defaults to sync_interval_seconds)")
	flag.Parse()

	opts := cli.DaemonOptions{
		Addr:        *addr,
		Token:       *token,
		DBPath:      *dbPath,
		BacklogPath: *backlogPath,
		PlannerPath: *plannerPath,
		Tag:         *tag,
		Strategy:    *strategy,
		Interval:    *interval,
	}

	if err := cli.ServeDaemon(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

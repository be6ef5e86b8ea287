// Command tbcalib calibrates the base temperature of a crop from a field
// observation table.
//
// Usage:
//
//	tbcalib run data/mock/field_trial.csv --tb-min 5 --tb-max 15 --tb-step 0.5 \
//	  --scan-out scan.csv --series-out series.csv --json-out report.json
//	tbcalib validate data/mock/field_trial.csv
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

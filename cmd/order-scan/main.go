package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/utils"
	"github.com/aidenhsy/cron-schedules/workflow"
)

// One-shot discrepancy scan, for cron or manual runs where the long-lived
// server is not wanted.
func main() {
	batchSize := flag.Int("batch-size", 0, "Orders per page (default 200)")
	startDate := flag.String("start-date", "", "Optional: scan orders created on/after this date (YYYY-MM-DD)")
	endDate := flag.String("end-date", "", "Optional: scan orders created on/before this date (YYYY-MM-DD)")
	timeout := flag.Duration("timeout", 2*time.Hour, "Abort the scan after this long")
	flag.Parse()

	var opts *workflow.ScanOptions
	if strings.TrimSpace(*startDate) != "" || strings.TrimSpace(*endDate) != "" {
		from, to, err := utils.ValidateDateRange(*startDate, *endDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		opts = &workflow.ScanOptions{From: &from, To: &to}
	}

	config.ConnectDatabasesWithRetry()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = utils.SetTriggeredByInContext(ctx, "cli")

	report, err := workflow.ScanOrders(ctx, *batchSize, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}

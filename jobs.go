package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/utils"
	"github.com/aidenhsy/cron-schedules/workflow"
)

// periodicJob is one scheduled maintenance task. Every body is idempotent,
// so the redis lock is single-flight convenience, not a correctness
// requirement.
type periodicJob struct {
	name     string
	interval time.Duration
	lockTTL  time.Duration
	run      func(ctx context.Context) error
}

func shouldRunBackgroundJobs() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("BACKGROUND_JOBS_ENABLED")))
	if val == "false" {
		return false
	}
	// Default on: this service exists to run these sweeps.
	return true
}

func intervalFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Minute
}

// RunBackgroundJobs starts the periodic sweeps and blocks until ctx is
// cancelled.
func RunBackgroundJobs(ctx context.Context) {
	logger := config.GetLogger()
	if !shouldRunBackgroundJobs() {
		logger.WithFields(logrus.Fields{"field": "jobs"}).Warn("BACKGROUND_JOBS_ENABLED=false; background jobs disabled")
		return
	}

	jobs := []periodicJob{
		{
			name:     "order-scan",
			interval: intervalFromEnv("SCAN_INTERVAL_MINUTES", 60*time.Minute),
			lockTTL:  30 * time.Minute,
			run: func(ctx context.Context) error {
				_, err := workflow.ScanOrders(ctx, 0, nil)
				return err
			},
		},
		{
			name:     "wac-backfill",
			interval: intervalFromEnv("WAC_BACKFILL_INTERVAL_MINUTES", 15*time.Minute),
			lockTTL:  10 * time.Minute,
			run: func(ctx context.Context) error {
				_, err := workflow.ProcessMissingWacEntries(ctx)
				return err
			},
		},
		{
			name:     "supplier-item-sync",
			interval: intervalFromEnv("SUPPLIER_ITEM_SYNC_INTERVAL_MINUTES", 60*time.Minute),
			lockTTL:  10 * time.Minute,
			run: func(ctx context.Context) error {
				_, err := workflow.SyncSupplierItems(ctx)
				return err
			},
		},
	}

	for _, job := range jobs {
		job := job
		go runJobLoop(ctx, job)
	}
	<-ctx.Done()
}

func runJobLoop(ctx context.Context, job periodicJob) {
	logger := config.GetLogger()
	logger.WithFields(logrus.Fields{
		"job":      job.name,
		"interval": job.interval.String(),
	}).Info("jobs.loop.start")

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(job.interval):
		}
		runJobOnce(ctx, job)
	}
}

func runJobOnce(ctx context.Context, job periodicJob) {
	logger := config.GetLogger()

	release, err := utils.ObtainJobLock(ctx, job.name, job.lockTTL, "jobs", "runJobOnce")
	if err != nil {
		// Another replica holds the lock; the next tick tries again.
		logger.WithFields(logrus.Fields{
			"job": job.name,
		}).Info("jobs.skip: " + err.Error())
		return
	}
	defer release()

	jobCtx := utils.SetTriggeredByInContext(ctx, "job")
	started := time.Now()
	if err := job.run(jobCtx); err != nil {
		config.LogError(logger, "jobs", "runJobOnce", "job run failed",
			map[string]interface{}{"job": job.name}, err)
		return
	}
	logger.WithFields(logrus.Fields{
		"job":         job.name,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("jobs.run.done")
}

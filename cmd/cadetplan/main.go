package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"cadetplan/internal/config"
	"cadetplan/internal/curriculum"
	appLog "cadetplan/internal/log"
	"cadetplan/internal/progress"
	"cadetplan/internal/schedule"
	"cadetplan/internal/storage"
	"cadetplan/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	defer appLog.Sync()
	appLog.Info("cadetplan starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"curriculum_path", conf.CurriculumPath,
		"database_path", conf.DatabasePath,
		"report", conf.ReportCron,
		"periods_per_night", conf.PeriodsPerNight,
		"once", flags.once,
	)

	window, err := conf.Window()
	if err != nil {
		appLog.Error("invalid training year", err)
		return 1
	}
	if _, err := conf.ReportSchedule(); err != nil {
		appLog.Error("invalid report schedule", err)
		return 1
	}

	cur, err := curriculum.LoadFile(conf.CurriculumPath)
	if err != nil {
		appLog.Error("failed to load curriculum", err, "path", conf.CurriculumPath)
		return 1
	}

	store, err := storage.Open(conf.DatabasePath)
	if err != nil {
		appLog.Error("failed to open storage", err, "path", conf.DatabasePath)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap, err := store.LoadSchedule(ctx, cur)
	if err != nil {
		appLog.Error("failed to load schedule", err)
		return 1
	}
	days, acts, err := store.LoadPlanners(ctx, cur)
	if err != nil {
		appLog.Error("failed to load planners", err)
		return 1
	}

	srv, err := web.NewServer(conf, web.State{
		Curriculum:       cur,
		Window:           window,
		Schedule:         schedule.FromSnapshot(snap),
		DayPlanners:      days,
		ActivityPlanners: acts,
	}, store)
	if err != nil {
		appLog.Error("failed to initialize server", err)
		return 1
	}

	if flags.once {
		logReport(srv.ProgressReport())
		return 0
	}

	// Signal handling.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	c := cron.New(cron.WithLocation(conf.Location()))
	if _, err := c.AddFunc(conf.ReportCron, func() { logReport(srv.ProgressReport()) }); err != nil {
		appLog.Error("failed to schedule progress report", err, "report", conf.ReportCron)
		return 1
	}
	c.Start()
	defer c.Stop()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("http server failed", err)
			return 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
	appLog.Info("cadetplan exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/cadetplan/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Log the progress report once and exit")

	flag.Parse()

	return cfg
}

func logReport(rep progress.Report) {
	for _, ph := range rep.Phases {
		appLog.Info("phase progress",
			"phase", ph.PhaseNumber,
			"name", ph.PhaseName,
			"completed_periods", ph.CompletedPeriods,
			"total_periods", ph.TotalPeriods,
			"percent", ph.ProgressPercent,
			"outstanding", len(ph.Outstanding),
			"overscheduled", len(ph.Overscheduled),
		)
	}
	appLog.Info("overall progress",
		"completed_periods", rep.Overall.CompletedPeriods,
		"total_periods", rep.Overall.TotalPeriods,
		"percent", rep.Overall.ProgressPercent,
	)
}

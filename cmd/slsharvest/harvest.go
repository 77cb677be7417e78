package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/FranksOps/slsharvest/internal/artifact"
	"github.com/FranksOps/slsharvest/internal/config"
	"github.com/FranksOps/slsharvest/internal/fingerprint"
	"github.com/FranksOps/slsharvest/internal/harvest"
	"github.com/FranksOps/slsharvest/internal/logging"
	"github.com/FranksOps/slsharvest/internal/metrics"
	"github.com/FranksOps/slsharvest/internal/report"
	"github.com/FranksOps/slsharvest/internal/search"
	"github.com/FranksOps/slsharvest/internal/storage"
	"github.com/FranksOps/slsharvest/pkg/httpclient"
	"github.com/FranksOps/slsharvest/pkg/ratelimit"
	"github.com/google/uuid"
)

func runHarvest(ctx context.Context, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.CheckTools(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := time.Now()
	root := cfg.RunRoot
	if root == "" {
		root = artifact.DefaultRoot(now)
	}
	layout := artifact.NewLayout(root, now)
	if err := layout.Ensure(); err != nil {
		return err
	}

	logFile, err := os.OpenFile(layout.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer logFile.Close()

	logger, err := logging.New(io.MultiWriter(os.Stderr, logFile), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runID := uuid.New().String()
	logger.Info("harvest started",
		"run_id", runID,
		"run_root", root,
		"filenames", cfg.Filenames,
		"domain", fmt.Sprintf("%d..%d", cfg.LowerBound, cfg.UpperBound),
		"delay", cfg.RequestDelay,
		"concurrency", cfg.Concurrency,
	)
	if cfg.CloneDir != "" || cfg.ConfigDir != "" {
		logger.Info("downstream directories", "clone_dir", cfg.CloneDir, "config_dir", cfg.ConfigDir)
	}

	ledger, err := openLedger(ctx, cfg.Ledger, cfg.LedgerDSN, root)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if ledger != nil {
		defer ledger.Close()
	}

	if cfg.MetricsPort > 0 {
		srv, err := metrics.Start(cfg.MetricsPort, logger)
		if err != nil {
			return err
		}
		defer srv.Stop(context.Background())
		logger.Info("metrics server listening", "addr", srv.Addr())
	}

	profile, err := fingerprint.ParseProfile(cfg.TLSProfile)
	if err != nil {
		return err
	}
	transport, err := fingerprint.Transport(profile)
	if err != nil {
		return err
	}
	hc, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		Token:     cfg.Token,
		Headers:   search.DefaultHeaders(),
		Transport: transport,
	})
	if err != nil {
		return err
	}

	client, err := search.NewClient(search.Options{
		BaseURL:  cfg.APIURL,
		PageSize: cfg.PageSize,
		HTTP:     hc,
		Limiter:  ratelimit.NewLimiter(cfg.RequestDelay, cfg.Jitter),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	fetcher, err := harvest.NewFetcher(harvest.FetchConfig{
		Client:      client,
		PageCeiling: cfg.PageCeiling,
		Diagnostics: artifact.NewDiagnostics(layout),
		Backend:     ledger,
		RunID:       runID,
	}, logger)
	if err != nil {
		return err
	}

	if err := fetcher.VerifyCredential(ctx, cfg.TolerateInvalidToken); err != nil {
		logger.Error("credential rejected", "err", err)
		return err
	}

	targets := make([]harvest.Target, 0, len(cfg.Filenames))
	for _, name := range cfg.Filenames {
		targets = append(targets, harvest.Target{Filename: name, Lower: cfg.LowerBound, Upper: cfg.UpperBound})
	}

	h, err := harvest.New(harvest.Config{
		Targets:      targets,
		MinInterval:  cfg.MinInterval,
		MaxInterval:  cfg.MaxInterval,
		LowResults:   cfg.LowResults,
		Concurrency:  cfg.Concurrency,
		CombinedPath: layout.CombinedPath(),
	}, fetcher, artifact.NewResultWriter(layout, logger), logger)
	if err != nil {
		return err
	}

	rep, err := h.Run(ctx)
	if err != nil {
		logger.Error("harvest interrupted", "err", err)
		return err
	}

	for _, tr := range rep.Targets {
		if tr.Err != nil {
			logger.Warn("target incomplete", "target", tr.Target.Filename, "err", tr.Err)
		}
	}

	if ledger != nil {
		if err := writeSummary(ctx, ledger, runID, root); err != nil {
			logger.Error("failed to write summary", "err", err)
		}
	}

	logger.Info("harvest finished", "run_id", runID, "unique", len(rep.URLs), "combined", layout.CombinedPath())
	return nil
}

func writeSummary(ctx context.Context, ledger storage.Backend, runID, root string) error {
	records, err := ledger.Query(ctx, storage.Filter{RunID: runID})
	if err != nil {
		return err
	}
	summary := report.GenerateSummary(records)

	for name, write := range map[string]func(io.Writer, report.Summary) error{
		"summary.txt":  report.WriteText,
		"summary.json": report.WriteJSON,
	} {
		f, err := os.Create(filepath.Join(root, name))
		if err != nil {
			return err
		}
		if err := write(f, summary); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

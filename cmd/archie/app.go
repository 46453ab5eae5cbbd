package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/anonymize"
	"github.com/fyrsmithlabs/archie/internal/config"
	"github.com/fyrsmithlabs/archie/internal/conversation"
	"github.com/fyrsmithlabs/archie/internal/ignore"
	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/logging"
	"github.com/fyrsmithlabs/archie/internal/matching"
	"github.com/fyrsmithlabs/archie/internal/oracle"
	"github.com/fyrsmithlabs/archie/internal/oracle/provider"
	"github.com/fyrsmithlabs/archie/internal/pii"
	"github.com/fyrsmithlabs/archie/internal/pipeline"
	"github.com/fyrsmithlabs/archie/internal/publish"
	"github.com/fyrsmithlabs/archie/internal/render"
	"github.com/fyrsmithlabs/archie/internal/repohost"
	"github.com/fyrsmithlabs/archie/internal/telemetry"
)

// app holds the runtime dependencies of one command invocation.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
	host   repohost.Host
	index  *index.Index
}

// newApp loads configuration and initializes logging, telemetry and the
// repository host. Pipeline components are built on demand by pipeline().
func newApp(ctx context.Context, flags *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadWithFile(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}

	// Telemetry comes first so the log bridge can use its provider.
	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger, err := logging.NewLoggerTo(logCfg, logOut, logging.WithLoggerProvider(tel.LoggerProvider()))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(ctx, "Telemetry degraded, continuing without export", zap.Error(reason))
	}

	zl := logger.Underlying()
	host, err := newHost(ctx, cfg.Repository, zl)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to connect to repository: %w", err)
	}

	exclude, err := ignore.New(cfg.Repository.Exclude)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	idx := index.New(host, index.Options{
		Ref:               cfg.Repository.Branch,
		DefaultCategories: cfg.Repository.DefaultCategories,
		Exclude:           exclude,
	}, zl)

	logger.Debug(ctx, "Archie initialized",
		zap.String("repository_host", cfg.Repository.Host),
		zap.String("branch", cfg.Repository.Branch),
		zap.String("oracle_provider", cfg.Oracle.Provider),
		zap.Int("exclude_patterns", exclude.Len()),
		zap.Bool("telemetry", tel.IsEnabled()),
	)
	return &app{cfg: cfg, logger: logger, tel: tel, host: host, index: idx}, nil
}

// Close flushes telemetry and logs.
func (a *app) Close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "Telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// pipeline wires every stage of the knowledge pipeline.
func (a *app) pipeline(dryRun bool) (*pipeline.Orchestrator, error) {
	zl := a.logger.Underlying()

	masker, err := pii.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pii masker: %w", err)
	}
	orc, err := provider.New(a.cfg.Oracle, zl, provider.WithMasker(masker))
	if err != nil {
		return nil, err
	}

	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	pc := a.cfg.Pipeline
	components := pipeline.Components{
		Standardizer: conversation.NewStandardizer(zl),
		Anonymizer:   anonymize.NewCoordinator(orc, pc.AnonymizeConcurrency, zl),
		Extractor:    knowledge.NewExtractor(orc, orc, pc.MinContentChars, zl),
		Index:        a.index,
		Matcher:      matching.NewEngine(orc, a.index, pc.MaxMatchCandidates, zl),
		Publisher:    newPublisher(a.host, renderer, orc, a.cfg, zl),
		Answerer:     orc,
	}
	return pipeline.New(components, pipeline.Options{DryRun: dryRun || pc.DryRun}, a.tel, zl)
}

// publisher builds a Publisher for edits that need no oracle.
func (a *app) publisher() (*publish.Publisher, error) {
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}
	return newPublisher(a.host, renderer, nil, a.cfg, a.logger.Underlying()), nil
}

func newPublisher(host repohost.Host, renderer *render.Renderer, merger oracle.Oracle, cfg *config.Config, logger *zap.Logger) *publish.Publisher {
	return publish.New(host, renderer, merger, publish.Options{
		BaseBranch:      cfg.Repository.Branch,
		BranchPrefix:    cfg.Pipeline.BranchPrefix,
		BranchMaxLength: cfg.Pipeline.BranchMaxLength,
		MaxAttempts:     cfg.Pipeline.MaxPublishAttempts,
		Labels:          cfg.Pipeline.Labels,
	}, logger)
}

// newHost connects to the configured repository host. A missing local
// repository is initialized empty.
func newHost(ctx context.Context, rc config.RepositoryConfig, logger *zap.Logger) (repohost.Host, error) {
	info := repohost.Info{
		Owner:         rc.Owner,
		Name:          rc.Name,
		DefaultBranch: rc.Branch,
		WebURL:        rc.WebURL,
	}

	switch rc.Host {
	case config.HostGitHub:
		gh, err := repohost.NewGitHub(ctx, repohost.GitHubConfig{
			Owner:         rc.Owner,
			Name:          rc.Name,
			DefaultBranch: rc.Branch,
			Token:         rc.Token.Value(),
			BaseURL:       rc.BaseURL,
			WebURL:        rc.WebURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return gh, nil
	case config.HostLocal:
		info.WebURL = ""
		local, err := repohost.OpenLocal(rc.LocalPath, info, logger)
		if errors.Is(err, repohost.ErrNotFound) {
			logger.Info("Initializing local knowledge base", zap.String("path", rc.LocalPath))
			local, err = repohost.InitLocal(rc.LocalPath, rc.Branch, nil, logger)
		}
		if err != nil {
			return nil, err
		}
		return local, nil
	case config.HostMemory:
		return repohost.NewMemory(info, nil), nil
	}
	return nil, fmt.Errorf("unknown repository host %q", rc.Host)
}

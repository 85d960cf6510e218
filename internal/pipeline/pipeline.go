// Package pipeline wires the build stages together in one forward pass:
// configuration, toolchain, source, arguments, execution, artifacts.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"github.com/qobs-build/skiabuild/internal/binaries"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/executor"
	"github.com/qobs-build/skiabuild/internal/gnargs"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/qobs-build/skiabuild/internal/source"
	"github.com/qobs-build/skiabuild/internal/toolchain"
)

// Plan is everything known before a subprocess runs.
type Plan struct {
	Final *source.FinalBuildConfiguration
	Tools toolchain.Paths
	Args  *gnargs.BuildArguments
}

type Pipeline struct {
	Logger   hclog.Logger
	Locator  *toolchain.Locator
	Resolver *source.Resolver
	Fetcher  *binaries.Fetcher // nil disables prebuilt binaries
	Output   io.Writer         // live gn/ninja output
	GOOS     string
}

// New returns a pipeline wired to the real environment.
func New(logger hclog.Logger) *Pipeline {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	fetcher := &binaries.Fetcher{Logger: logger.Named("prebuilt")}
	if dir, err := binaries.DefaultCacheDir(); err == nil {
		if cache, err := binaries.OpenCache(dir); err == nil {
			fetcher.Cache = cache
		} else {
			logger.Debug("binaries cache unavailable", "dir", dir, "error", err)
		}
	}
	return &Pipeline{
		Logger:   logger,
		Locator:  toolchain.NewLocator(logger.Named("toolchain")),
		Resolver: source.NewResolver(logger.Named("source")),
		Fetcher:  fetcher,
		GOOS:     runtime.GOOS,
	}
}

// Run executes the whole pipeline with a default Pipeline.
func Run(ctx context.Context, env config.Environ, opts config.Options, logger hclog.Logger) (*binaries.Configuration, error) {
	return New(logger).Run(ctx, env, opts)
}

func (p *Pipeline) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}

// DryRun stops after argument synthesis. It never spawns a subprocess.
func (p *Pipeline) DryRun(env config.Environ, opts config.Options) (*Plan, error) {
	logger := p.logger()

	cfg, err := config.Resolve(env, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("resolved configuration",
		"target", cfg.Target, "profile", cfg.Profile.Name, "capabilities", cfg.Capabilities.String(), "key", cfg.Key())

	locator := p.Locator
	if locator == nil {
		locator = toolchain.NewLocator(logger.Named("toolchain"))
	}
	tools := locator.Locate(toolchain.Paths{Gn: cfg.GnCommand, Ninja: cfg.NinjaCommand})

	resolver := p.Resolver
	if resolver == nil {
		resolver = source.NewResolver(logger.Named("source"))
	}
	fcfg, err := resolver.Resolve(cfg, cfg.OfflineSourceDir)
	if err != nil {
		return nil, err
	}
	if fcfg.Mode == source.Full {
		goos := p.GOOS
		if goos == "" {
			goos = runtime.GOOS
		}
		tools = tools.WithFallback(fcfg.SourceDir, goos)
	}
	logger.Debug("resolved toolchain", "gn", tools.Gn, "ninja", tools.Ninja)

	args, err := gnargs.Synthesize(fcfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("synthesized gn args", "args", args.Flatten(), "defines", args.Defines)

	return &Plan{Final: fcfg, Tools: tools, Args: args}, nil
}

// Run plans, builds (or reuses prebuilt binaries) and collects the artifacts.
func (p *Pipeline) Run(ctx context.Context, env config.Environ, opts config.Options) (*binaries.Configuration, error) {
	logger := p.logger()

	plan, err := p.DryRun(env, opts)
	if err != nil {
		return nil, err
	}
	fcfg := plan.Final
	for _, w := range fcfg.Warnings {
		msg.Warn("%s", w)
	}

	if c, ok, err := p.tryPrebuilt(ctx, plan); err != nil {
		return nil, err
	} else if ok {
		return c, nil
	}

	exec := &executor.Executor{
		Logger: logger.Named("executor"),
		Jobs:   fcfg.NinjaJobs,
		Output: p.Output,
	}
	outcome := exec.Run(ctx, plan.Args, plan.Tools, executor.Dirs{
		Source: fcfg.SourceDir,
		Output: fcfg.OutDir,
	})
	logger.Debug("build finished", "outcome", hclog.Fmt("%T", outcome))

	return binaries.Collect(outcome, fcfg, plan.Args.Defines)
}

// tryPrebuilt reuses binaries from SKIA_BINARIES_URL. Any failure other
// than a busy output directory falls back to a source build.
func (p *Pipeline) tryPrebuilt(ctx context.Context, plan *Plan) (*binaries.Configuration, bool, error) {
	fcfg := plan.Final
	if fcfg.BinariesURL == "" || p.Fetcher == nil {
		return nil, false, nil
	}
	logger := p.logger()

	if err := os.MkdirAll(fcfg.OutDir, 0o755); err != nil {
		msg.Warn("prebuilt binaries unavailable, building from source: %v", err)
		return nil, false, nil
	}
	lock, holder, err := executor.AcquireLock(fcfg.OutDir)
	if errors.Is(err, executor.ErrLocked) {
		return nil, false, executor.Locked{OutputDir: fcfg.OutDir, Holder: holder}.Err()
	} else if err != nil {
		msg.Warn("prebuilt binaries unavailable, building from source: %v", err)
		return nil, false, nil
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release output directory lock", "dir", fcfg.OutDir, "error", err)
		}
	}()

	key := fcfg.Key()
	url := binaries.ExpandURL(fcfg.BinariesURL, key)
	if err := p.Fetcher.Fetch(ctx, url, key, fcfg.OutDir); err != nil {
		msg.Warn("prebuilt binaries unavailable, building from source: %v", err)
		return nil, false, nil
	}

	c, err := binaries.Collect(executor.Success{OutputDir: fcfg.OutDir}, fcfg, plan.Args.Defines)
	if err != nil {
		msg.Warn("prebuilt binaries incomplete, building from source: %v", err)
		return nil, false, nil
	}
	logger.Info("using prebuilt binaries", "key", key, "url", url)
	return c, true, nil
}

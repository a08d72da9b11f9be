package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/cfg"
	"github.com/lysyi3m/feed-digest/app/digest"
	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/logx"
	"github.com/lysyi3m/feed-digest/app/notify"
	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if errors.Is(err, cfg.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	log, err := logx.New(logx.Config{Level: appCfg.LogLevel, Format: appCfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, appCfg, log); err != nil {
		log.Error().Err(err).Msg("Feed digest failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg *cfg.Cfg, log zerolog.Logger) error {
	log.Info().Str("version", appCfg.Version).Bool("daemon", appCfg.Daemon()).Msg("Starting feed digest")

	var catalog *feed.Catalog
	if appCfg.SourcesFile != "" {
		catalog = feed.NewCatalog(appCfg.SourcesFile, log)
		catalog.SetValidator(source.ValidateConfig)
		if err := catalog.Load(); err != nil {
			return fmt.Errorf("failed to load sources file: %w", err)
		}
	}
	specs := specsFunc(appCfg.Specs(), catalog, log)

	opts := appCfg.SourceOptions()
	opts.HTTPClient = &http.Client{Timeout: appCfg.HTTPTimeout}
	adapters, problems := source.Build(opts, log)
	for _, problem := range problems {
		var cfgErr *source.ConfigError
		if errors.As(problem, &cfgErr) && source.Uses(specs(), cfgErr.Kind) {
			log.Warn().Err(problem).Msg("Skipping sources")
		}
	}

	notifier, err := notify.Build(notify.Options{
		Feishu: notify.FeishuOptions{
			Webhook: appCfg.FeishuWebhook,
			Secret:  appCfg.FeishuSecret,
			Title:   appCfg.FeishuTitle,
			Client:  &http.Client{Timeout: appCfg.HTTPTimeout},
		},
		Telegram: notify.TelegramOptions{
			Token:  appCfg.TelegramToken,
			ChatID: appCfg.TelegramChatID,
			APIURL: appCfg.TelegramAPIURL,
			Title:  appCfg.FeishuTitle,
			Client: &http.Client{Timeout: appCfg.HTTPTimeout},
		},
		MaxItems: appCfg.MaxCardItems,
		Console:  os.Stdout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to configure delivery: %w", err)
	}
	if notifier.Name() == "console" {
		log.Warn().Msg("No delivery endpoint configured, printing digest instead")
	}

	store := openStore(ctx, appCfg.State(), log)
	if store != nil {
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	aggregator := digest.NewAggregator(adapters, appCfg.MaxItems, log)
	task := tasks.NewDigestTask(aggregator, store, notifier, specs, tasks.NewMetrics(reg), log)

	if !appCfg.Daemon() {
		task.Execute(ctx)
		return nil
	}

	return runDaemon(ctx, appCfg, daemonDeps{
		task:     task,
		store:    store,
		catalog:  catalog,
		specs:    specs,
		registry: reg,
	}, log)
}

// openStore opens the configured state backend. A backend that cannot be
// reached turns incremental mode off for this process instead of failing.
func openStore(ctx context.Context, c state.Config, log zerolog.Logger) state.Store {
	store, err := state.Open(ctx, c)
	if err != nil {
		log.Warn().Err(err).Str("driver", c.Driver).Msg("State backend unavailable, running without incremental state")
		return nil
	}
	if store == nil {
		log.Info().Msg("No state configured, every run delivers all fetched items")
	}
	return store
}

// specsFunc combines the sources from the environment with those of the
// sources file, read fresh on every call.
func specsFunc(base []source.Spec, catalog *feed.Catalog, log zerolog.Logger) tasks.SpecsFunc {
	return func() []source.Spec {
		if catalog == nil {
			return base
		}
		extra, err := source.SpecsFromConfig(catalog.Sources())
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring sources file entries")
			return base
		}
		return append(append(make([]source.Spec, 0, len(base)+len(extra)), base...), extra...)
	}
}

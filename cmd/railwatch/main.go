// Command railwatch runs the proactive travel recommendation service:
// a calendar change detector feeding a guardrailed recommendation cycle,
// with a small HTTP control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"railwatch/internal/calendar"
	"railwatch/internal/config"
	appLog "railwatch/internal/log"
	"railwatch/internal/model"
	"railwatch/internal/monitor"
	"railwatch/internal/notify"
	"railwatch/internal/reason"
	"railwatch/internal/travel"
	"railwatch/internal/watch"
	"railwatch/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	appLog.Setup(*debug)

	if err := run(*configPath); err != nil {
		appLog.Error("railwatch exited with error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.Error("invalid timezone, using process local", err, "timezone", cfg.Timezone)
		loc = time.Local
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Calendar provider.
	var (
		calSource calendar.Source
		calMock   *calendar.MockSource
	)
	switch cfg.Providers.Calendar {
	case "ics":
		feeds := make([]calendar.Feed, 0, len(cfg.ICS))
		for _, ics := range cfg.ICS {
			feeds = append(feeds, calendar.Feed{ID: ics.ID, URL: ics.URL})
		}
		calSource = calendar.NewICSSource(feeds, cfg.CacheDir)
	default:
		calMock = calendar.NewMockSource()
		calSource = calMock
	}

	// Travel provider.
	var (
		travSource travel.Source
		travMock   *travel.MockSource
	)
	switch cfg.Providers.Travel {
	case "ns":
		travSource = travel.NewNSSource(cfg.ProxyBaseURL)
	default:
		travMock = travel.NewMockSource()
		travSource = travMock
	}

	// Recommendation provider.
	var provider reason.Provider
	switch cfg.Providers.Reasoning {
	case "llm":
		provider = reason.NewLLMProvider(reason.NewHTTPGenerator(cfg.ProxyBaseURL))
	default:
		provider = reason.NewRuleProvider()
	}

	history, err := notify.OpenHistory(ctx, cfg.AlertDBPath)
	if err != nil {
		return fmt.Errorf("open alert history: %w", err)
	}
	defer history.Close()

	var channel notify.Notifier
	inapp := notify.NewInAppNotifier()
	switch cfg.Providers.Notifications {
	case "log":
		channel = notify.NewLogNotifier()
	default:
		inapp.OnReceive(func(a model.TravelAlert) {
			appLog.Info("alert delivered", "id", a.ID, "type", string(a.Type))
		})
		channel = inapp
	}
	notifier := notify.NewHistoryNotifier(history, channel)

	m := monitor.New(calSource, travSource, provider, notifier, model.TravelQuery{
		From:        cfg.Query.From,
		To:          cfg.Query.To,
		Station:     cfg.Query.Station,
		DepartAfter: cfg.Query.DepartAfter,
	})
	m.UseLocation(loc)

	detector := watch.NewDetector(calSource, cfg.WatchCron, func(c watch.Change) {
		m.OnCalendarChanged(ctx, c)
	})
	detector.UseLocation(loc)

	stopWatch, err := detector.Start(ctx)
	if err != nil {
		return fmt.Errorf("start calendar watch: %w", err)
	}
	defer stopWatch()

	sims := web.Simulators{}
	if calMock != nil {
		sims.Calendar = calMock
	}
	if travMock != nil {
		sims.Travel = travMock
	}
	srv := web.NewServer(m, history, detector, sims)

	appLog.Info("railwatch starting",
		"calendar", cfg.Providers.Calendar,
		"travel", cfg.Providers.Travel,
		"reasoning", cfg.Providers.Reasoning,
		"timezone", cfg.Timezone,
	)

	if err := srv.Serve(ctx, cfg.Listen); err != nil && ctx.Err() == nil {
		return fmt.Errorf("control api: %w", err)
	}
	appLog.Info("railwatch stopped")
	return nil
}

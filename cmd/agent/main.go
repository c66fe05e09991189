package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatwatch/chatwatch/internal/ledger"
	"github.com/chatwatch/chatwatch/internal/monitor"
	"github.com/chatwatch/chatwatch/internal/reporter"
	"github.com/chatwatch/chatwatch/internal/tracker"
	"github.com/chatwatch/chatwatch/internal/types"
	"github.com/chatwatch/chatwatch/internal/window"
	"github.com/chatwatch/chatwatch/pkg/client"
)

func main() {
	// CLI flags
	var (
		serverURL      = flag.String("server-url", "http://localhost:8080", "Collector URL")
		agentID        = flag.String("agent-id", "", "Agent identifier (default: hostname)")
		rulesPath      = flag.String("rules", "", "Window rules YAML file (default: built-in rules)")
		snapshotCmd    = flag.String("snapshot-cmd", "", "Command that prints the visible-window list as JSON")
		scanInterval   = flag.Duration("scan-interval", monitor.DefaultScanInterval, "Window scan interval")
		reportInterval = flag.Duration("report-interval", reporter.DefaultInterval, "Report push interval")
		replyThreshold = flag.Duration("reply-threshold", ledger.DefaultReplyThreshold, "Minimum conversation length counted as replied")
		tzOffset       = flag.Int("tz-offset", 8, "Business timezone offset from UTC in hours")
		logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "agent").
		Logger()

	id := *agentID
	if id == "" {
		hostname, err := os.Hostname()
		if err != nil {
			logger.Fatal().Err(err).Msg("no agent id and hostname unavailable")
		}
		id = hostname
	}

	if *snapshotCmd == "" {
		logger.Fatal().Msg("-snapshot-cmd is required")
	}
	parts := strings.Fields(*snapshotCmd)
	snapshotter := window.NewExecSnapshotter(parts[0], parts[1:]...)

	rules, err := window.LoadRules(*rulesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *rulesPath).Msg("could not load window rules")
	}

	loc := time.FixedZone("business", *tzOffset*3600)

	led := ledger.New(loc, *replyThreshold, logger)
	engine := tracker.NewEngine(rules, led, logger)
	c := client.NewClient(*serverURL)
	rep := reporter.New(c, engine, led, id, *reportInterval, logger)
	led.SetFlushFunc(rep.FlushSnapshot)
	mon := monitor.New(snapshotter, engine, led, *scanInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())

	// Resume the current day's counters from the collector if it is up.
	bootCtx, bootCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rep.Bootstrap(bootCtx); err != nil {
		logger.Warn().Err(err).Msg("bootstrap failed, starting with zero counters")
	}
	bootCancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		rep.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		rep.MessageLoop(ctx, func(msg types.Message) {
			logger.Info().Str("id", msg.ID).Str("body", msg.Body).Msg("operator message")
		})
	}()

	logger.Info().
		Str("agent_id", id).
		Str("server_url", *serverURL).
		Msg("agent ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down agent")
	cancel()
	wg.Wait()
}

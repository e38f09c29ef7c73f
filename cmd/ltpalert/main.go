// Command ltpalert streams last-traded prices and fires threshold alerts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ltpalert/ltpalert/alert"
	"github.com/ltpalert/ltpalert/config"
	"github.com/ltpalert/ltpalert/feed"
	"github.com/ltpalert/ltpalert/instrument"
	"github.com/ltpalert/ltpalert/internal/ctxtime"
	"github.com/ltpalert/ltpalert/logging"
	"github.com/ltpalert/ltpalert/metrics"
	"github.com/ltpalert/ltpalert/notify"
	"github.com/ltpalert/ltpalert/store/memory"
	"github.com/ltpalert/ltpalert/store/sqlstore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ltpalert: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	registry, err := instrument.LoadFile(cfg.Instruments.Path, cfg.Instruments.HasHeader)
	if err != nil {
		return err
	}
	logger.Infof("loaded %d instruments from %s", registry.Len(), cfg.Instruments.Path)

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := newNotifier(cfg.Telegram, logger)
	if err != nil {
		return err
	}

	evaluator := alert.NewEvaluator(registry, store, notifier,
		alert.WithLogger(logger),
		alert.WithMarkRetries(cfg.Alert.MarkRetries, cfg.Alert.RetryDelay),
		alert.WithInstrumentKeyMatching(cfg.Alert.MatchInstrumentKey),
	)
	handler := feed.BatchHandlerFunc(func(ctx context.Context, b feed.Batch) error {
		err := evaluator.HandleBatch(ctx, b)
		if err != nil && errors.Is(err, alert.ErrNotify) && !errors.Is(err, alert.ErrRuleStore) {
			// already marked sent; the log line is the reconciliation record
			logger.Errorf("%v", err)
			return nil
		}
		return err
	})

	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr, logger)
		logger.Infof("serving metrics on %s", cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runOnce := func(ctx context.Context) error {
		session := feed.NewSession(registry,
			feed.WithLogger(logger),
			feed.WithAuthURL(cfg.Feed.AuthURL),
			feed.WithAccessToken(cfg.Feed.AccessToken),
			feed.WithAuthTimeout(cfg.Feed.AuthTimeout),
			feed.WithPingPeriod(cfg.Feed.PingPeriod),
			feed.WithReadLimit(cfg.Feed.ReadLimit),
		)
		if err := session.Connect(ctx); err != nil {
			return err
		}
		return session.Run(ctx, handler)
	}

	err = supervise(ctx, cfg.Feed.ReconnectLimit, cfg.Feed.ReconnectDelay, logger, runOnce)
	st := evaluator.Stats()
	logger.Infof("evaluated %d ticks, sent %d alerts, suppressed %d", st.Evaluated, st.Sent, st.Suppressed)
	return err
}

// supervise runs sessions until one ends cleanly or fails with a
// non-retriable error. Retriable failures start a new session after
// delay*attempt, at most limit times in a row.
func supervise(ctx context.Context, limit int, delay time.Duration, logger logging.Logger, runOnce func(context.Context) error) error {
	failedAttemptsInARow := 0
	for {
		err := runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if !feed.IsRetriable(err) {
			return err
		}
		if failedAttemptsInARow >= limit {
			if limit > 0 {
				logger.Errorf("max reconnect limit has been reached, last error: %v", err)
				return fmt.Errorf("max reconnect limit has been reached, last error: %w", err)
			}
			return err
		}
		failedAttemptsInARow++
		logger.Warnf("session failed, reconnecting (attempt %d/%d): %v", failedAttemptsInARow, limit, err)
		if err := ctxtime.Sleep(ctx, time.Duration(failedAttemptsInARow)*delay); err != nil {
			return nil
		}
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (alert.RuleStore, func(), error) {
	switch cfg.Driver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		s, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", alert.ErrRuleStore, err)
		}
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, nil, fmt.Errorf("%w: %v", alert.ErrRuleStore, err)
			}
		}
		return s, func() { _ = s.Close() }, nil
	default:
		rules, err := seedRules(cfg.Rules)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		s, err := memory.New(rules...)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		return s, func() {}, nil
	}
}

func seedRules(rcs []config.RuleConfig) ([]alert.Rule, error) {
	now := time.Now()
	rules := make([]alert.Rule, 0, len(rcs))
	for i, rc := range rcs {
		above, err := rc.Above()
		if err != nil {
			return nil, fmt.Errorf("store.rules[%d].%v", i, err)
		}
		id := rc.ID
		if id == "" {
			id = uuid.NewString()
		}
		rules = append(rules, alert.Rule{
			ID:        id,
			Symbol:    rc.Symbol,
			Threshold: rc.Threshold,
			Direction: alert.DirectionFromAboveOrBelow(above),
			CreatedAt: now,
		})
	}
	return rules, nil
}

func newNotifier(cfg config.TelegramConfig, logger logging.Logger) (alert.Notifier, error) {
	sinks := []alert.Notifier{notify.NewLog(logger)}
	if cfg.Enabled {
		tg, err := notify.NewTelegram(cfg.BotToken, cfg.ChatID, cfg.MaxRetries, cfg.RetryDelay)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	return notify.Multi(sinks...), nil
}

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhorvath/vintedwatch/internal/api"
	"github.com/mhorvath/vintedwatch/internal/clock"
	"github.com/mhorvath/vintedwatch/internal/config"
	"github.com/mhorvath/vintedwatch/internal/dedup"
	"github.com/mhorvath/vintedwatch/internal/logging"
	"github.com/mhorvath/vintedwatch/internal/metrics"
	"github.com/mhorvath/vintedwatch/internal/monitor"
	"github.com/mhorvath/vintedwatch/internal/notify"
	"github.com/mhorvath/vintedwatch/internal/ratelimit"
	"github.com/mhorvath/vintedwatch/internal/session"
	"github.com/mhorvath/vintedwatch/internal/vinted"
)

// newWatchCmd creates the 'watch' subcommand, which runs the monitoring
// loop until interrupted.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Start monitoring the configured searches",
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	sess, err := session.New(cfg.Vinted.BaseURL(), clock.System{}, logger.Named("session"))
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))

	limiter := ratelimit.New(clock.System{})
	client := vinted.NewClient(cfg.Vinted.BaseURL(), sess, limiter, logger.Named("vinted"))
	notifier := notify.New(bot, dedup.New(), cfg.Vinted.BaseURL(), logger.Named("notify"))

	sched := monitor.New(
		monitor.Config{Interval: cfg.Monitor.Interval(), PerPage: cfg.Monitor.PerPage},
		client, notifier, cfg.SearchSpecs(), sess, clock.System{},
		logger.Named("monitor"),
	)

	srv := api.NewServer(sched, logger.Named("api"))
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			logger.Warn("status server failed", zap.Error(err))
		}
	}()

	return sched.Run(ctx)
}

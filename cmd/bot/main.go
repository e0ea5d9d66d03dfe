package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/BrianAllred/TelegramVideoBot/internal/bot"
	"github.com/BrianAllred/TelegramVideoBot/internal/config"
	"github.com/BrianAllred/TelegramVideoBot/internal/logx"
	"github.com/BrianAllred/TelegramVideoBot/internal/media"
	"github.com/BrianAllred/TelegramVideoBot/internal/pipeline"
	"github.com/BrianAllred/TelegramVideoBot/internal/queue"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	if cfg.BotToken == "" {
		log.Fatal().Msg("TG_BOT_TOKEN is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("creating data dir failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UpdateYtDlpOnStart {
		if err := media.SelfUpdate(ctx, cfg.ToolTimeout); err != nil {
			log.Error().Err(err).Msg("yt-dlp self-update failed, continuing with installed version")
		}
	}

	// health endpoint
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
		log.Info().Str("addr", cfg.HealthAddr).Msg("health endpoint up")
		log.Error().Err(http.ListenAndServe(cfg.HealthAddr, nil)).Msg("health endpoint down")
	}()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	api.Debug = false
	log.Info().Str("username", api.Self.UserName).Msg("bot authorized")

	delivery := bot.NewDelivery(api)
	exec := pipeline.New(
		cfg.DataDir,
		cfg.UploadLimitBytes(),
		media.NewDownloader(cfg.DataDir, cfg.UploadLimitMB, cfg.ToolTimeout),
		media.NewProber(cfg.ToolTimeout),
		media.NewTranscoder(cfg.ToolTimeout),
		delivery,
	)

	// Drain loops run on a background context on purpose: a SIGTERM stops
	// the update stream but lets in-flight downloads finish delivery.
	registry := queue.NewRegistry(context.Background(), cfg.QueueLimit, exec.Run)
	go registry.Janitor(ctx, time.Minute, cfg.QueueEvictAfter)

	handler := bot.NewHandler(api, registry, cfg.BotName, cfg.QueueLimit, cfg.UploadLimitMB)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown requested, stopping update stream")
		api.StopReceivingUpdates()
	}()

	for upd := range updates {
		handler.HandleUpdate(upd)
	}

	log.Info().Msg("waiting for in-flight downloads")
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := registry.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown grace expired with downloads still running")
	}
	log.Info().Msg("bot stopped")
}

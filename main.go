package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Geergon/tg-media-downloader/internal/config"
	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/locale"
	"github.com/Geergon/tg-media-downloader/internal/logger"
	"github.com/Geergon/tg-media-downloader/internal/messenger"
	"github.com/Geergon/tg-media-downloader/internal/messenger/botapi"
	"github.com/Geergon/tg-media-downloader/internal/messenger/mtproto"
	"github.com/Geergon/tg-media-downloader/internal/metrics"
	"github.com/Geergon/tg-media-downloader/internal/server"
	"github.com/Geergon/tg-media-downloader/internal/tgbot"
	"github.com/Geergon/tg-media-downloader/internal/worker"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

func main() {
	cfg, v, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Помилка конфігурації: %v", err)
	}

	lg, level := logger.New(cfg.Log)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, v, lg, level); err != nil {
		lg.Fatal("Бот зупинився з помилкою", zap.Error(err))
	}
	lg.Info("Бот зупинено")
}

func run(ctx context.Context, cfg *config.Config, v *viper.Viper, lg *zap.Logger, level zap.AtomicLevel) error {
	runner := yt.ExecRunner{}
	if missing := yt.CheckTools(cfg.Tools.Ytdlp, cfg.Tools.Ffmpeg, cfg.Tools.GalleryDl); len(missing) > 0 {
		lg.Warn("Не знайдено програми в PATH", zap.Strings("missing", missing))
	}
	if cfg.Tools.SelfUpdate {
		yt.UpdateYtdlp(ctx, runner, cfg.Tools.Ytdlp, lg)
	}
	lg.Info("Інструменти",
		zap.String("yt-dlp", yt.Version(ctx, runner, cfg.Tools.Ytdlp, "--version")),
		zap.String("ffmpeg", yt.Version(ctx, runner, cfg.Tools.Ffmpeg, "-version")),
	)

	config.Watch(v, lg, func(c *config.Config) {
		level.SetLevel(logger.ParseLevel(c.Log.Level))
	})

	if err := os.MkdirAll(cfg.Download.Dir, 0o755); err != nil {
		return errors.Wrap(err, "директорія завантажень")
	}

	store, err := database.Open(ctx, cfg.Store, lg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Warn("Помилка закриття сховища", zap.Error(err))
		}
	}()

	cat, err := locale.Load()
	if err != nil {
		return err
	}

	m := metrics.New()
	pool := worker.New(cfg.Download.Workers, lg, m)

	api, err := botapi.New(cfg.Telegram.Token, lg)
	if err != nil {
		return err
	}
	var gw messenger.Gateway = api
	var mt *mtproto.Gateway
	if cfg.Telegram.Transport == config.TransportMTProto {
		mt, err = mtproto.New(cfg.Telegram, api, lg)
		if err != nil {
			return err
		}
		gw = mt
	}

	bot := tgbot.New(tgbot.Deps{
		Gateway:    gw,
		Store:      store,
		Catalog:    cat,
		Classifier: yt.NewClassifier(cfg.Download.BlockedHosts),
		Extractor: yt.NewExtractor(runner, yt.ExtractorConfig{
			Ytdlp:     cfg.Tools.Ytdlp,
			GalleryDl: cfg.Tools.GalleryDl,
			Timeout:   cfg.Download.Timeout,
		}, lg),
		Transcoder: yt.NewTranscoder(runner, cfg.Tools.Ffmpeg),
		Scheduler:  pool,
		Metrics:    m,
		Log:        lg,
	}, tgbot.Options{
		DownloadDir:       cfg.Download.Dir,
		AttachmentCeiling: cfg.Download.AttachmentCeiling(),
		Cookies: map[yt.Category]string{
			yt.TikTok:    cfg.Tools.Cookies.TikTok,
			yt.Instagram: cfg.Tools.Cookies.Instagram,
		},
	})

	srvOpts := server.Options{
		Port:    cfg.HTTP.Port,
		Handler: bot.HandleUpdate,
		Metrics: m.Handler(),
	}
	if cfg.Telegram.Transport == config.TransportWebhook {
		srvOpts.Parser = api
		srvOpts.WebhookPath = cfg.Webhook.Path
	}
	srv := server.New(srvOpts, lg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	lg.Info("Бот стартував",
		zap.String("bot", api.Username()),
		zap.String("transport", cfg.Telegram.Transport),
		zap.String("store", cfg.Store.Backend),
	)
	switch cfg.Telegram.Transport {
	case config.TransportWebhook:
		g.Go(func() error {
			if err := api.SetWebhook(gctx, cfg.Webhook.URL()); err != nil {
				return errors.Wrap(err, "встановлення вебхука")
			}
			lg.Info("Вебхук встановлено", zap.String("path", cfg.Webhook.Path))
			return nil
		})
	case config.TransportPolling:
		g.Go(func() error { return api.Poll(gctx, bot.HandleUpdate) })
	case config.TransportMTProto:
		g.Go(func() error { return mt.Run(gctx, bot.HandleUpdate) })
	}

	err = g.Wait()

	lg.Info("Очікування незавершених завантажень", zap.Duration("grace", cfg.Download.ShutdownGrace))
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Download.ShutdownGrace)
	defer cancel()
	if perr := pool.Shutdown(sctx); perr != nil {
		lg.Warn("Не всі завантаження завершились", zap.Error(perr))
	}
	return err
}

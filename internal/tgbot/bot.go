package tgbot

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/locale"
	"github.com/Geergon/tg-media-downloader/internal/messenger"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

type Extractor interface {
	Extract(ctx context.Context, r yt.Request) error
}

type Transcoder interface {
	ExtractAudio(ctx context.Context, video string) (string, error)
}

// Scheduler запускає задачу у фоні і повертається одразу.
type Scheduler interface {
	Submit(name string, fn func(ctx context.Context)) error
}

// Recorder приймач метрик.
type Recorder interface {
	Dispatch(outcome string, d time.Duration)
	Delivery(kind, route string, err error)
	Update(kind string)
}

type nopRecorder struct{}

func (nopRecorder) Dispatch(string, time.Duration)  {}
func (nopRecorder) Delivery(string, string, error) {}
func (nopRecorder) Update(string)                  {}

type Options struct {
	DownloadDir string
	// AttachmentCeiling відео більші за цей розмір йдуть документом.
	AttachmentCeiling int64
	Cookies           map[yt.Category]string
}

type Deps struct {
	Gateway    messenger.Gateway
	Store      database.Store
	Catalog    *locale.Catalog
	Classifier *yt.Classifier
	Extractor  Extractor
	Transcoder Transcoder
	Scheduler  Scheduler
	Metrics    Recorder
	Log        *zap.Logger
}

type Bot struct {
	gw         messenger.Gateway
	store      database.Store
	cat        *locale.Catalog
	classifier *yt.Classifier
	extractor  Extractor
	transcoder Transcoder
	sched      Scheduler
	metrics    Recorder
	log        *zap.Logger
	opts       Options
	commands   []command

	now      func() time.Time
	newToken func() string
}

func New(d Deps, opts Options) *Bot {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if opts.AttachmentCeiling <= 0 {
		opts.AttachmentCeiling = 50 * 1024 * 1024
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	return &Bot{
		gw:         d.Gateway,
		store:      d.Store,
		cat:        d.Catalog,
		classifier: d.Classifier,
		extractor:  d.Extractor,
		transcoder: d.Transcoder,
		sched:      d.Scheduler,
		metrics:    d.Metrics,
		log:        d.Log,
		opts:       opts,
		commands:   buildCommands(d.Catalog),
		now:        time.Now,
		newToken:   func() string { return ulid.Make().String() },
	}
}

// HandleUpdate точка входу для всіх транспортів. Довгі операції йдуть у Scheduler.
func (b *Bot) HandleUpdate(ctx context.Context, u messenger.Update) {
	switch {
	case u.Message != nil:
		b.metrics.Update("message")
		b.onMessage(ctx, u.Message)
	case u.Callback != nil:
		b.metrics.Update("callback")
		b.onCallback(ctx, u.Callback)
	}
}

// user повертає налаштування користувача. Помилка сховища не зупиняє обробку:
// використовуємо запис за замовчуванням у пам'яті.
func (b *Bot) user(ctx context.Context, from messenger.User) *database.User {
	p := database.Profile{ID: from.ID, Name: from.FirstName, Language: b.cat.Match(from.LanguageCode)}
	u, err := b.store.GetOrCreate(ctx, p)
	if err != nil {
		b.log.Error("Помилка сховища, використовую налаштування за замовчуванням",
			zap.Int64("user_id", from.ID), zap.Error(err))
		if u == nil {
			u = database.NewUser(p, b.now())
		}
	}
	return u
}

func (b *Bot) t(lang, key string) string { return b.cat.T(lang, key) }

// send надсилає текст і лише логує помилку.
func (b *Bot) send(ctx context.Context, chatID int64, text string, kb *messenger.Keyboard) {
	if _, err := b.gw.SendText(ctx, chatID, text, kb); err != nil {
		b.log.Warn("Помилка надсилання повідомлення", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

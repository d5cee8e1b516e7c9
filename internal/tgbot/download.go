package tgbot

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/metrics"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

type state int

const (
	stateReceived state = iota
	stateClassified
	stateExtracting
	stateResolving
	stateDelivering
	stateCleaned
	stateDone
	stateErrorReported
)

func (s state) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateClassified:
		return "classified"
	case stateExtracting:
		return "extracting"
	case stateResolving:
		return "resolving"
	case stateDelivering:
		return "delivering"
	case stateCleaned:
		return "cleaned"
	case stateDone:
		return "done"
	case stateErrorReported:
		return "error_reported"
	}
	return "unknown"
}

// job одне завантаження. User це знімок налаштувань на момент отримання посилання.
type job struct {
	ID       string
	ChatID   int64
	URL      string
	Category yt.Category
	User     database.User
	Received time.Time
}

// dispatch класифікує посилання і ставить завантаження у фон. Обробник повертається одразу.
func (b *Bot) dispatch(ctx context.Context, chatID int64, u *database.User, link string) {
	j := job{
		ID:       b.newToken(),
		ChatID:   chatID,
		URL:      link,
		Category: b.classifier.Classify(link),
		User:     *u,
		Received: b.now(),
	}
	log := b.jobLog(j)
	log.Info("Отримано посилання", zap.String("url", link), zap.Stringer("state", stateClassified))

	if j.Category == yt.Blocked {
		b.send(ctx, chatID, b.t(u.Language, "yt_disabled"), nil)
		b.metrics.Dispatch(metrics.OutcomeBlocked, 0)
		log.Info("Посилання відхилено", zap.Stringer("state", stateErrorReported), zap.Error(ErrPolicyBlocked))
		return
	}

	if err := b.sched.Submit("dispatch", func(jctx context.Context) { b.run(jctx, j) }); err != nil {
		log.Error("Не вдалося запустити завантаження", zap.Error(err))
		b.send(ctx, chatID, b.t(u.Language, "download_failed"), nil)
	}
}

func (b *Bot) jobLog(j job) *zap.Logger {
	return b.log.With(
		zap.String("request_id", j.ID),
		zap.Int64("chat_id", j.ChatID),
		zap.Stringer("category", j.Category),
	)
}

// failureKey текст помилки завантаження залежно від платформи.
func failureKey(c yt.Category) string {
	switch c {
	case yt.TikTok:
		return "tiktok_error"
	case yt.Instagram:
		return "ig_error"
	}
	return "download_failed"
}

// run виконує extract → resolve → deliver. Прибирання виконується на будь-якому виході,
// лічильник збільшується лише після успішного надсилання основного файлу.
func (b *Bot) run(ctx context.Context, j job) {
	log := b.jobLog(j)
	lang := j.User.Language
	track := newCleanup(b.gw, j.ChatID, log)
	defer track.Run(ctx)

	outcome := metrics.OutcomeSuccess
	defer func() {
		b.metrics.Dispatch(outcome, b.now().Sub(j.Received))
	}()

	reported := false
	// паніка теж невдача: прибрати, повідомити користувача один раз і передати паніку далі пулу
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		outcome = metrics.OutcomePanic
		// паніка могла статися до пошуку файлів
		_, all, _ := yt.Resolve(b.opts.DownloadDir, yt.NamePrefix(j.ChatID, j.ID))
		track.Track(all...)
		track.Run(ctx)
		if !reported {
			b.send(ctx, j.ChatID, b.t(lang, "download_failed"), nil)
		}
		log.Error("Паніка під час завантаження", zap.Stringer("state", stateErrorReported), zap.Any("panic", r))
		panic(r)
	}()

	fail := func(st state, o string, key string, err error) {
		outcome = o
		track.Run(ctx)
		b.send(ctx, j.ChatID, b.t(lang, key), nil)
		reported = true
		log.Warn("Завантаження не вдалося",
			zap.Stringer("failed_in", st), zap.Stringer("state", stateErrorReported), zap.Error(err))
	}

	if id, err := b.gw.SendText(ctx, j.ChatID, b.t(lang, "loading"), nil); err != nil {
		log.Warn("Не вдалося надіслати статус", zap.Error(err))
	} else {
		track.Status(id)
	}

	req := yt.Request{
		URL:       j.URL,
		Category:  j.Category,
		Format:    j.User.Format,
		Companion: j.User.DeliverCompanion(),
		Dir:       b.opts.DownloadDir,
		Prefix:    yt.NamePrefix(j.ChatID, j.ID),
		Cookies:   b.opts.Cookies[j.Category],
	}

	log.Debug("Запуск завантаження", zap.Stringer("state", stateExtracting))
	extractErr := b.extractor.Extract(ctx, req)

	// навіть після невдачі інструмент міг залишити частину файлів
	artifacts, all, resolveErr := yt.Resolve(req.Dir, req.Prefix)
	track.Track(all...)

	if extractErr != nil {
		fail(stateExtracting, metrics.OutcomeExtraction, failureKey(j.Category), extractErr)
		return
	}

	log.Debug("Пошук файлів", zap.Stringer("state", stateResolving))
	if resolveErr != nil {
		o := metrics.OutcomeExtraction
		if errors.Is(resolveErr, yt.ErrNoArtifact) {
			o = metrics.OutcomeNoArtifact
		}
		fail(stateResolving, o, failureKey(j.Category), resolveErr)
		return
	}

	info := b.readInfo(all, log)
	d := delivery{
		ChatID:           j.ChatID,
		Artifacts:        artifacts,
		Caption:          b.caption(j, info, artifacts),
		Title:            info.Title,
		Companion:        req.Companion,
		CompanionCaption: b.t(lang, "companion_suffix"),
	}

	log.Debug("Надсилання", zap.Stringer("state", stateDelivering), zap.Int("artifacts", len(artifacts)))
	res := b.deliver(ctx, d, track, log)

	track.Run(ctx)
	log.Debug("Файли прибрано", zap.Stringer("state", stateCleaned))

	if res.PrimaryErr != nil {
		outcome = metrics.OutcomeDeliveryFailure
		b.send(ctx, j.ChatID, b.t(lang, "delivery_failed"), nil)
		reported = true
		log.Warn("Основний файл не надіслано",
			zap.Stringer("state", stateErrorReported), zap.Error(res.PrimaryErr))
		return
	}

	total, err := b.store.IncrementDownloads(ctx, j.User.ID)
	if err != nil {
		log.Error("Не вдалося оновити лічильник", zap.Int64("user_id", j.User.ID), zap.Error(err))
	}
	log.Info("Завантаження завершено",
		zap.Stringer("state", stateDone),
		zap.Int("sent", res.Sent),
		zap.Int64("downloads", total),
		zap.Duration("took", b.now().Sub(j.Received)),
	)
}

func (b *Bot) readInfo(paths []string, log *zap.Logger) yt.Info {
	p, ok := yt.InfoFile(paths)
	if !ok {
		return yt.Info{}
	}
	info, err := yt.ReadInfo(p)
	if err != nil {
		log.Debug("info.json не прочитано", zap.Error(err))
		return yt.Info{}
	}
	return info
}

// caption назва та, якщо користувач хоче, опис. Для фото з TikTok без назви є окремий підпис.
func (b *Bot) caption(j job, info yt.Info, artifacts []yt.Artifact) string {
	title := strings.TrimSpace(info.Title)
	if title == "" && j.Category == yt.TikTok && onlyImages(artifacts) {
		title = b.t(j.User.Language, "tiktok_photo_caption")
	}

	parts := make([]string, 0, 2)
	if title != "" {
		parts = append(parts, title)
	}
	if j.User.IncludeDescription {
		if desc := strings.TrimSpace(info.Description); desc != "" && desc != title {
			parts = append(parts, desc)
		}
	}
	return truncateCaption(strings.Join(parts, "\n\n"))
}

func onlyImages(artifacts []yt.Artifact) bool {
	for _, a := range artifacts {
		if a.Kind != yt.KindImage {
			return false
		}
	}
	return len(artifacts) > 0
}

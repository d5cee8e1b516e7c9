package tgbot

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/messenger"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

const (
	routeVideo    = "video"
	routeDocument = "document"
	routeAudio    = "audio"
	routePhoto    = "photo"
	routeGroup    = "group"
)

// unit одне надсилання: окремий файл або альбом з фото.
type unit struct {
	kind   yt.Kind
	files  []yt.Artifact
	single yt.Artifact
}

// plan групує фото в один альбом на місці першого фото, решта йде окремо в порядку лістингу.
func plan(artifacts []yt.Artifact) []unit {
	var units []unit
	group := -1
	for _, a := range artifacts {
		if a.Kind == yt.KindImage {
			if group < 0 {
				group = len(units)
				units = append(units, unit{kind: yt.KindImage})
			}
			units[group].files = append(units[group].files, a)
			continue
		}
		units = append(units, unit{kind: a.Kind, single: a})
	}
	return units
}

// route вибирає спосіб надсилання відео за розміром.
func route(a yt.Artifact, ceiling int64) string {
	if a.Size > ceiling {
		return routeDocument
	}
	return routeVideo
}

func truncateCaption(s string) string {
	if utf8.RuneCountInString(s) <= messenger.MaxCaption {
		return s
	}
	r := []rune(s)
	return string(r[:messenger.MaxCaption-1]) + "…"
}

type delivery struct {
	ChatID    int64
	Artifacts []yt.Artifact
	Caption   string
	Title     string
	Companion bool
	// CompanionCaption підпис для окремого аудіо.
	CompanionCaption string
}

type deliveryResult struct {
	Sent       int
	PrimaryErr error
}

func (b *Bot) deliver(ctx context.Context, d delivery, track *cleanup, log *zap.Logger) deliveryResult {
	var res deliveryResult
	units := plan(d.Artifacts)

	companionNeeded := d.Companion
	for _, a := range d.Artifacts {
		if a.Kind == yt.KindAudio {
			companionNeeded = false
		}
	}

	for i, u := range units {
		caption := ""
		if i == 0 {
			caption = truncateCaption(d.Caption)
		}
		err := b.sendUnit(ctx, d.ChatID, u, caption, d.Title, log)
		if err == nil {
			res.Sent++
		}
		if i == 0 {
			res.PrimaryErr = err
		}

		if i == 0 && u.kind == yt.KindVideo && companionNeeded {
			if b.sendCompanion(ctx, d, u.single, track, log) {
				res.Sent++
			}
		}
	}
	return res
}

func (b *Bot) sendUnit(ctx context.Context, chatID int64, u unit, caption, title string, log *zap.Logger) error {
	switch u.kind {
	case yt.KindImage:
		return b.sendImages(ctx, chatID, u.files, caption, log)
	case yt.KindAudio:
		err := b.gw.SendAudio(ctx, chatID, messenger.File{Path: u.single.Path, Caption: caption, Title: title})
		b.observe(u.single, routeAudio, err, log)
		return deliveryErr(u.single.Path, routeAudio, err)
	default:
		r := route(u.single, b.opts.AttachmentCeiling)
		f := messenger.File{Path: u.single.Path, Caption: caption, Title: title}
		var err error
		if r == routeDocument {
			err = b.gw.SendDocument(ctx, chatID, f)
		} else {
			err = b.gw.SendVideo(ctx, chatID, f)
		}
		b.observe(u.single, r, err, log)
		return deliveryErr(u.single.Path, r, err)
	}
}

// sendImages одне фото йде як фото, кілька як альбоми по MaxGroupSize.
func (b *Bot) sendImages(ctx context.Context, chatID int64, images []yt.Artifact, caption string, log *zap.Logger) error {
	if len(images) == 1 {
		err := b.gw.SendPhoto(ctx, chatID, messenger.File{Path: images[0].Path, Caption: caption})
		b.observe(images[0], routePhoto, err, log)
		return deliveryErr(images[0].Path, routePhoto, err)
	}

	var first error
	for start := 0; start < len(images); start += messenger.MaxGroupSize {
		end := min(start+messenger.MaxGroupSize, len(images))
		files := make([]messenger.File, 0, end-start)
		for i, a := range images[start:end] {
			f := messenger.File{Path: a.Path}
			if start == 0 && i == 0 {
				f.Caption = caption
			}
			files = append(files, f)
		}
		err := b.gw.SendPhotoGroup(ctx, chatID, files)
		b.observe(images[start], routeGroup, err, log)
		if err != nil && first == nil {
			first = deliveryErr(images[start].Path, routeGroup, err)
		}
	}
	return first
}

// sendCompanion виділяє аудіо з відео і надсилає його слідом. Невдача не впливає на основне відео.
func (b *Bot) sendCompanion(ctx context.Context, d delivery, video yt.Artifact, track *cleanup, log *zap.Logger) bool {
	if b.transcoder == nil {
		return false
	}
	audio, err := b.transcoder.ExtractAudio(ctx, video.Path)
	track.Track(audio)
	if err != nil {
		log.Warn("Не вдалося виділити аудіо", zap.String("video", video.Path), zap.Error(err))
		return false
	}

	art := yt.Artifact{Path: audio, Kind: yt.KindAudio}
	if st, err := os.Stat(audio); err == nil {
		art.Size = st.Size()
	}
	err = b.gw.SendAudio(ctx, d.ChatID, messenger.File{Path: audio, Caption: companionCaption(d.Caption, d.CompanionCaption), Title: d.Title})
	b.observe(art, routeAudio, err, log)
	return err == nil
}

// companionCaption основний підпис з суфіксом. Суфікс не обрізається.
func companionCaption(caption, suffix string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return truncateCaption(suffix)
	}
	room := messenger.MaxCaption - utf8.RuneCountInString(suffix) - 2
	if room <= 0 {
		return truncateCaption(suffix)
	}
	if r := []rune(caption); len(r) > room {
		caption = string(r[:room])
	}
	return caption + "\n\n" + suffix
}

func (b *Bot) observe(a yt.Artifact, r string, err error, log *zap.Logger) {
	b.metrics.Delivery(a.Kind.String(), r, err)
	if err != nil {
		log.Warn("Помилка надсилання файлу",
			zap.String("path", a.Path), zap.String("route", r), zap.Error(err))
		return
	}
	log.Info("Файл надіслано",
		zap.String("route", r), zap.String("size", humanize.Bytes(uint64(max(a.Size, 0)))))
}

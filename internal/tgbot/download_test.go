package tgbot

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/metrics"
	"github.com/Geergon/tg-media-downloader/internal/worker"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

func videoOnly(u *database.User) {
	u.Format = database.FormatMP4
	u.VideoPlusAudio = false
}

func TestDispatch_HappyPathVideo(t *testing.T) {
	h := newHarness(t, nil)
	h.settings(t, videoOnly)
	h.ext.files = []fakeFile{
		{suffix: "_00001.mp4", size: 500},
		{suffix: "_00001.info.json", data: `{"title":"Cat","description":"funny cat"}`},
	}

	h.text(t, "https://vimeo.com/123")

	require.Equal(t, 1, h.ext.calls())
	req := h.ext.requests[0]
	assert.Equal(t, yt.Generic, req.Category)
	assert.Equal(t, "42_01TEST", req.Prefix)
	assert.False(t, req.Companion)

	assert.Equal(t, []string{"SendVideo"}, h.gw.sends())
	video := h.gw.byMethod("SendVideo")[0].files[0]
	assert.Equal(t, "Cat\n\nfunny cat", video.Caption)
	assert.Equal(t, "Cat", video.Title)

	assert.Equal(t, int64(1), h.downloads(t))
	assert.Empty(t, h.leftovers(t), "усі файли запиту видалені")

	// статусне повідомлення видалено
	status := h.gw.byMethod("SendText")[0]
	assert.Equal(t, h.cat.T("en", "loading"), status.text)
	deleted := h.gw.byMethod("DeleteMessage")
	require.Len(t, deleted, 1)
	assert.Equal(t, 101, deleted[0].messageID)
}

func TestDispatch_HandlerReturnsBeforeJob(t *testing.T) {
	q := &queueScheduler{}
	h := newHarness(t, q)
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 10}}

	h.text(t, "https://vimeo.com/1")
	assert.Zero(t, h.ext.calls(), "завантаження не виконується в обробнику")
	require.Len(t, q.jobs, 1)

	q.jobs[0](t.Context())
	assert.Equal(t, 1, h.ext.calls())
}

func TestDispatch_Blocked(t *testing.T) {
	h := newHarness(t, nil)

	h.text(t, "https://www.youtube.com/watch?v=abc")

	assert.Zero(t, h.ext.calls(), "процес не запускається")
	assert.Equal(t, []string{h.cat.T("en", "yt_disabled")}, h.gw.texts())
	assert.Empty(t, h.gw.sends())
	assert.Zero(t, h.downloads(t))
}

func TestDispatch_ExtractionFailure(t *testing.T) {
	for _, tt := range []struct {
		name string
		url  string
		key  string
	}{
		{"generic", "https://vimeo.com/1", "download_failed"},
		{"tiktok", "https://www.tiktok.com/@a/video/1", "tiktok_error"},
		{"instagram", "https://www.instagram.com/p/xyz/", "ig_error"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ext.err = errors.New("exit status 1")
			h.ext.files = []fakeFile{{suffix: "_00001.mp4.part", data: "partial"}}

			h.text(t, tt.url)

			texts := h.gw.texts()
			require.Len(t, texts, 2, "статус і одне повідомлення про помилку")
			assert.Equal(t, h.cat.T("en", tt.key), texts[1])
			assert.Empty(t, h.gw.sends())
			assert.Zero(t, h.downloads(t))
			assert.Empty(t, h.leftovers(t), "частковий файл видалено")
		})
	}
}

func TestDispatch_NoArtifact(t *testing.T) {
	h := newHarness(t, nil)
	h.ext.files = []fakeFile{{suffix: "_00001.info.json", data: `{"title":"x"}`}}

	h.text(t, "https://vimeo.com/1")

	assert.Equal(t, h.cat.T("en", "download_failed"), h.gw.texts()[1])
	assert.Empty(t, h.gw.sends())
	assert.Zero(t, h.downloads(t))
	assert.Empty(t, h.leftovers(t))
}

func TestDispatch_SizeRouting(t *testing.T) {
	for _, tt := range []struct {
		size int64
		want string
	}{
		{ceiling - 1, "SendVideo"},
		{ceiling, "SendVideo"},
		{ceiling + 1, "SendDocument"},
		{ceiling * 10, "SendDocument"},
	} {
		h := newHarness(t, nil)
		h.settings(t, videoOnly)
		h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: tt.size}}

		h.text(t, "https://vimeo.com/1")

		assert.Equal(t, []string{tt.want}, h.gw.sends(), "size %d", tt.size)
		assert.Equal(t, int64(1), h.downloads(t))
	}
}

func TestDispatch_CompanionAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.ext.files = []fakeFile{
		{suffix: "_00001.mp4", size: 100},
		{suffix: "_00001.info.json", data: `{"title":"Song"}`},
	}

	h.text(t, "https://vimeo.com/1")

	require.True(t, h.ext.requests[0].Companion)
	assert.Equal(t, []string{"SendVideo", "SendAudio"}, h.gw.sends())
	audio := h.gw.byMethod("SendAudio")[0].files[0]
	assert.True(t, strings.HasSuffix(audio.Caption, h.cat.T("en", "companion_suffix")))
	assert.Equal(t, "Song", audio.Title)
	assert.Equal(t, int64(1), h.downloads(t))
	assert.Empty(t, h.leftovers(t), "виділене аудіо теж видалено")
}

func TestDispatch_CompanionFailureKeepsPrimary(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.fail = true
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 100}}

	h.text(t, "https://vimeo.com/1")

	assert.Equal(t, 1, h.tr.calls)
	assert.Equal(t, []string{"SendVideo"}, h.gw.sends())
	assert.Equal(t, int64(1), h.downloads(t))
	assert.Len(t, h.gw.texts(), 1, "лише статус, без повідомлення про помилку")
}

func TestDispatch_AudioFormatNoCompanion(t *testing.T) {
	h := newHarness(t, nil)
	h.settings(t, func(u *database.User) { u.Format = database.FormatMP3 })
	h.ext.files = []fakeFile{{suffix: "_00001.mp3", size: 100}}

	h.text(t, "https://soundcloud.com/a/b")

	assert.False(t, h.ext.requests[0].Companion)
	assert.Equal(t, []string{"SendAudio"}, h.gw.sends())
	assert.Zero(t, h.tr.calls)
}

func TestDispatch_DeliveryFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.settings(t, videoOnly)
	h.gw.fail["SendVideo"] = errors.New("Request Entity Too Large")
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 100}}

	h.text(t, "https://vimeo.com/1")

	texts := h.gw.texts()
	assert.Equal(t, h.cat.T("en", "delivery_failed"), texts[len(texts)-1])
	assert.Zero(t, h.downloads(t))
	assert.Empty(t, h.leftovers(t))
}

func TestDispatch_ImageGroupChunking(t *testing.T) {
	h := newHarness(t, nil)
	var files []fakeFile
	for i := 1; i <= 12; i++ {
		files = append(files, fakeFile{suffix: fmt.Sprintf("_%05d.jpg", i), data: "img"})
	}
	h.ext.files = files

	h.text(t, "https://www.tiktok.com/@a/photo/1")

	groups := h.gw.byMethod("SendPhotoGroup")
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].files, 10)
	assert.Len(t, groups[1].files, 2)
	assert.Equal(t, h.cat.T("en", "tiktok_photo_caption"), groups[0].files[0].Caption)
	for _, f := range groups[0].files[1:] {
		assert.Empty(t, f.Caption)
	}
	assert.Empty(t, groups[1].files[0].Caption)
	assert.Equal(t, int64(1), h.downloads(t))
	assert.Empty(t, h.leftovers(t))
}

func TestDispatch_SinglePhoto(t *testing.T) {
	h := newHarness(t, nil)
	h.ext.files = []fakeFile{{suffix: "_00001.jpg", data: "img"}}

	h.text(t, "https://www.instagram.com/p/abc/")

	assert.Equal(t, []string{"SendPhoto"}, h.gw.sends())
}

func TestDispatch_SchedulerClosed(t *testing.T) {
	h := newHarness(t, &queueScheduler{err: errors.New("closed")})

	h.text(t, "https://vimeo.com/1")

	assert.Equal(t, []string{h.cat.T("en", "download_failed")}, h.gw.texts())
	assert.Zero(t, h.ext.calls())
}

func TestDispatch_CookiesPerCategory(t *testing.T) {
	h := newHarness(t, nil)
	h.bot.opts.Cookies = map[yt.Category]string{yt.TikTok: "/etc/tt.txt"}
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 10}}

	h.text(t, "https://vm.tiktok.com/x")
	h.text(t, "https://vimeo.com/1")

	require.Len(t, h.ext.requests, 2)
	assert.Equal(t, "/etc/tt.txt", h.ext.requests[0].Cookies)
	assert.Empty(t, h.ext.requests[1].Cookies)
}

func TestDispatch_CounterMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	h.settings(t, videoOnly)
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 10}}

	for i := 0; i < 3; i++ {
		h.text(t, "https://vimeo.com/1")
	}
	assert.Equal(t, int64(3), h.downloads(t))

	h.ext.err = errors.New("boom")
	h.text(t, "https://vimeo.com/1")
	h.text(t, "https://youtu.be/x")
	assert.Equal(t, int64(3), h.downloads(t))
}

func TestDispatch_PanicReportsFailure(t *testing.T) {
	pool := worker.New(1, zap.NewNop(), nil)
	h := newHarness(t, pool)
	h.ext.panics = true
	h.ext.files = []fakeFile{{suffix: "_00001.mp4.part", data: "partial"}}

	h.text(t, "https://vimeo.com/1")
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.Equal(t, []string{h.cat.T("en", "loading"), h.cat.T("en", "download_failed")}, h.gw.texts())
	assert.Equal(t, []string{metrics.OutcomePanic}, h.rec.all())
	assert.Len(t, h.gw.byMethod("DeleteMessage"), 1, "статус видалено")
	assert.Empty(t, h.gw.sends())
	assert.Zero(t, h.downloads(t))
	assert.Empty(t, h.leftovers(t))
}

func TestDispatch_PanicDuringCleanupReportsOnce(t *testing.T) {
	pool := worker.New(1, zap.NewNop(), nil)
	h := newHarness(t, pool)
	h.bot.gw = panickyGateway{h.gw}
	h.ext.err = errors.New("exit status 1")
	h.ext.files = []fakeFile{{suffix: "_00001.mp4.part", data: "partial"}}

	h.text(t, "https://vimeo.com/1")
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.Equal(t, []string{h.cat.T("en", "loading"), h.cat.T("en", "download_failed")}, h.gw.texts())
	assert.Equal(t, []string{metrics.OutcomePanic}, h.rec.all())
	assert.Empty(t, h.leftovers(t), "файли видалено до паніки")
}

func TestDispatch_OutcomeRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.settings(t, videoOnly)
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 10}}
	h.text(t, "https://vimeo.com/1")

	h.ext.err = errors.New("exit status 1")
	h.text(t, "https://vimeo.com/1")

	assert.Equal(t, []string{metrics.OutcomeSuccess, metrics.OutcomeExtraction}, h.rec.all())
}

func TestDispatch_StoreUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	broken := &brokenStore{}
	h.bot.store = broken
	h.ext.files = []fakeFile{{suffix: "_00001.mp4", size: 100}}

	h.text(t, "https://vimeo.com/1")

	// налаштування за замовчуванням: mp4 разом з аудіо
	require.Equal(t, 1, h.ext.calls())
	req := h.ext.requests[0]
	assert.Equal(t, database.FormatMP4, req.Format)
	assert.True(t, req.Companion)

	assert.Equal(t, []string{"SendVideo", "SendAudio"}, h.gw.sends())
	assert.Equal(t, []string{h.cat.T("en", "loading")}, h.gw.texts(), "помилка сховища не показується користувачу")
	assert.Equal(t, 1, broken.increments)
	assert.Equal(t, []string{metrics.OutcomeSuccess}, h.rec.all())
	assert.Empty(t, h.leftovers(t))
}

func TestCaption(t *testing.T) {
	h := newHarness(t, nil)
	video := []yt.Artifact{{Path: "a.mp4", Kind: yt.KindVideo}}
	images := []yt.Artifact{{Path: "a.jpg", Kind: yt.KindImage}}

	with := job{Category: yt.Generic, User: database.User{Language: "en", IncludeDescription: true}}
	without := job{Category: yt.Generic, User: database.User{Language: "en"}}
	tiktok := job{Category: yt.TikTok, User: database.User{Language: "en", IncludeDescription: true}}

	assert.Equal(t, "T\n\nD", h.bot.caption(with, yt.Info{Title: "T", Description: "D"}, video))
	assert.Equal(t, "T", h.bot.caption(without, yt.Info{Title: "T", Description: "D"}, video))
	assert.Equal(t, "T", h.bot.caption(with, yt.Info{Title: "T", Description: "T"}, video))
	assert.Empty(t, h.bot.caption(tiktok, yt.Info{}, video))
	assert.Equal(t, h.cat.T("en", "tiktok_photo_caption"), h.bot.caption(tiktok, yt.Info{}, images))

	long := h.bot.caption(with, yt.Info{Title: "T", Description: strings.Repeat("я", 3000)}, video)
	assert.Equal(t, 1024, len([]rune(long)))
}

func TestCompanionCaption(t *testing.T) {
	assert.Equal(t, "🎧 Audio", companionCaption("", "🎧 Audio"))
	assert.Equal(t, "Song\n\n🎧 Audio", companionCaption("Song", "🎧 Audio"))

	c := companionCaption(strings.Repeat("x", 2000), "🎧 Audio")
	assert.Equal(t, 1024, len([]rune(c)))
	assert.True(t, strings.HasSuffix(c, "🎧 Audio"))
}

func TestFailureKey(t *testing.T) {
	assert.Equal(t, "tiktok_error", failureKey(yt.TikTok))
	assert.Equal(t, "ig_error", failureKey(yt.Instagram))
	assert.Equal(t, "download_failed", failureKey(yt.Generic))
}

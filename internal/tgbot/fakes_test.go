package tgbot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/locale"
	"github.com/Geergon/tg-media-downloader/internal/messenger"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

type call struct {
	method    string
	chatID    int64
	messageID int
	text      string
	kb        *messenger.Keyboard
	files     []messenger.File
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []call
	nextID int
	fail   map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextID: 100, fail: map[string]error{}}
}

func (g *fakeGateway) record(c call) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	return g.fail[c.method]
}

func (g *fakeGateway) SendText(_ context.Context, chatID int64, text string, kb *messenger.Keyboard) (int, error) {
	if err := g.record(call{method: "SendText", chatID: chatID, text: text, kb: kb}); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return g.nextID, nil
}

func (g *fakeGateway) SendVideo(_ context.Context, chatID int64, f messenger.File) error {
	return g.record(call{method: "SendVideo", chatID: chatID, files: []messenger.File{f}})
}

func (g *fakeGateway) SendAudio(_ context.Context, chatID int64, f messenger.File) error {
	return g.record(call{method: "SendAudio", chatID: chatID, files: []messenger.File{f}})
}

func (g *fakeGateway) SendPhoto(_ context.Context, chatID int64, f messenger.File) error {
	return g.record(call{method: "SendPhoto", chatID: chatID, files: []messenger.File{f}})
}

func (g *fakeGateway) SendDocument(_ context.Context, chatID int64, f messenger.File) error {
	return g.record(call{method: "SendDocument", chatID: chatID, files: []messenger.File{f}})
}

func (g *fakeGateway) SendPhotoGroup(_ context.Context, chatID int64, files []messenger.File) error {
	return g.record(call{method: "SendPhotoGroup", chatID: chatID, files: files})
}

func (g *fakeGateway) EditText(_ context.Context, chatID int64, messageID int, text string, kb *messenger.Keyboard) error {
	return g.record(call{method: "EditText", chatID: chatID, messageID: messageID, text: text, kb: kb})
}

func (g *fakeGateway) EditKeyboard(_ context.Context, chatID int64, messageID int, kb *messenger.Keyboard) error {
	return g.record(call{method: "EditKeyboard", chatID: chatID, messageID: messageID, kb: kb})
}

func (g *fakeGateway) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return g.record(call{method: "DeleteMessage", chatID: chatID, messageID: messageID})
}

func (g *fakeGateway) AnswerCallback(_ context.Context, id string, text string) error {
	return g.record(call{method: "AnswerCallback", text: text})
}

func (g *fakeGateway) byMethod(method string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// sends надсилання файлів у порядку виклику.
func (g *fakeGateway) sends() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, c := range g.calls {
		switch c.method {
		case "SendVideo", "SendAudio", "SendPhoto", "SendDocument", "SendPhotoGroup":
			out = append(out, c.method)
		}
	}
	return out
}

func (g *fakeGateway) texts() []string {
	var out []string
	for _, c := range g.byMethod("SendText") {
		out = append(out, c.text)
	}
	return out
}

type fakeFile struct {
	suffix string
	size   int64
	data   string
}

// fakeExtractor створює файли за префіксом запиту, як це робить yt-dlp.
type fakeExtractor struct {
	mu       sync.Mutex
	requests []yt.Request
	files    []fakeFile
	err      error
	panics   bool
}

func (e *fakeExtractor) Extract(_ context.Context, r yt.Request) error {
	e.mu.Lock()
	e.requests = append(e.requests, r)
	e.mu.Unlock()

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return err
	}
	for _, f := range e.files {
		p := filepath.Join(r.Dir, r.Prefix+f.suffix)
		if err := os.WriteFile(p, []byte(f.data), 0o644); err != nil {
			return err
		}
		if f.size > 0 {
			if err := os.Truncate(p, f.size); err != nil {
				return err
			}
		}
	}
	if e.panics {
		panic("extractor exploded")
	}
	return e.err
}

func (e *fakeExtractor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

type fakeTranscoder struct {
	fail  bool
	calls int
}

func (t *fakeTranscoder) ExtractAudio(_ context.Context, video string) (string, error) {
	t.calls++
	out := yt.AudioPath(video)
	if t.fail {
		return out, errors.New("ffmpeg: exit status 1")
	}
	return out, os.WriteFile(out, []byte("mp3"), 0o644)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) Dispatch(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) Delivery(string, string, error) {}
func (r *fakeRecorder) Update(string)                  {}

func (r *fakeRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

// brokenStore сховище, у якого падає кожна операція.
type brokenStore struct {
	increments int
}

var errStoreDown = errors.New("database is locked")

func (s *brokenStore) GetOrCreate(context.Context, database.Profile) (*database.User, error) {
	return nil, errStoreDown
}

func (s *brokenStore) Save(context.Context, *database.User) error { return errStoreDown }

func (s *brokenStore) IncrementDownloads(context.Context, int64) (int64, error) {
	s.increments++
	return 0, errStoreDown
}

func (s *brokenStore) Close() error { return nil }

// panickyGateway панікує при видаленні повідомлення.
type panickyGateway struct {
	*fakeGateway
}

func (panickyGateway) DeleteMessage(context.Context, int64, int) error {
	panic("delete exploded")
}

type syncScheduler struct{}

func (syncScheduler) Submit(_ string, fn func(ctx context.Context)) error {
	fn(context.Background())
	return nil
}

// queueScheduler накопичує задачі, щоб перевірити, що обробник їх не виконує сам.
type queueScheduler struct {
	jobs []func(ctx context.Context)
	err  error
}

func (q *queueScheduler) Submit(_ string, fn func(ctx context.Context)) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, fn)
	return nil
}

type harness struct {
	bot   *Bot
	gw    *fakeGateway
	ext   *fakeExtractor
	tr    *fakeTranscoder
	store *database.Memory
	rec   *fakeRecorder
	cat   *locale.Catalog
	dir   string
}

const (
	testUser = int64(42)
	ceiling  = int64(1000)
)

func newHarness(t *testing.T, sched Scheduler) *harness {
	t.Helper()
	cat, err := locale.Load()
	require.NoError(t, err)

	h := &harness{
		gw:    newFakeGateway(),
		ext:   &fakeExtractor{},
		tr:    &fakeTranscoder{},
		store: database.NewMemory(),
		rec:   &fakeRecorder{},
		cat:   cat,
		dir:   t.TempDir(),
	}
	if sched == nil {
		sched = syncScheduler{}
	}
	h.bot = New(Deps{
		Gateway:    h.gw,
		Store:      h.store,
		Catalog:    cat,
		Classifier: yt.NewClassifier([]string{"youtube.com", "youtu.be"}),
		Extractor:  h.ext,
		Transcoder: h.tr,
		Scheduler:  sched,
		Metrics:    h.rec,
		Log:        zap.NewNop(),
	}, Options{DownloadDir: h.dir, AttachmentCeiling: ceiling})
	h.bot.newToken = func() string { return "01TEST" }
	return h
}

func (h *harness) from() messenger.User {
	return messenger.User{ID: testUser, FirstName: "Ann", LanguageCode: "en"}
}

// settings створює користувача і змінює його налаштування.
func (h *harness) settings(t *testing.T, mutate func(u *database.User)) {
	t.Helper()
	u, err := h.store.GetOrCreate(context.Background(), database.Profile{ID: testUser, Name: "Ann", Language: "en"})
	require.NoError(t, err)
	mutate(u)
	require.NoError(t, h.store.Save(context.Background(), u))
}

func (h *harness) text(t *testing.T, text string) {
	t.Helper()
	h.bot.HandleUpdate(context.Background(), messenger.Update{Message: &messenger.Message{
		ID: 1, ChatID: testUser, From: h.from(), Text: text,
	}})
}

func (h *harness) press(t *testing.T, data string) {
	t.Helper()
	h.bot.HandleUpdate(context.Background(), messenger.Update{Callback: &messenger.Callback{
		ID: "cb", ChatID: testUser, MessageID: 9, From: h.from(), Data: data,
	}})
}

func (h *harness) downloads(t *testing.T) int64 {
	t.Helper()
	u, err := h.store.GetOrCreate(context.Background(), database.Profile{ID: testUser})
	require.NoError(t, err)
	return u.Downloads
}

func (h *harness) leftovers(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

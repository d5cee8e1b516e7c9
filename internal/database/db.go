package database

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/config"
	"github.com/Geergon/tg-media-downloader/internal/locale"
)

type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMP3  Format = "mp3"
	FormatWebM Format = "webm"
)

var Formats = []Format{FormatMP4, FormatMP3, FormatWebM}

// ParseFormat приводить збережене значення до Format. Невідоме або порожнє значення стає mp4.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatMP4, FormatMP3, FormatWebM:
		return Format(s)
	}
	return FormatMP4
}

func (f Format) IsVideo() bool { return f != FormatMP3 }

const (
	SubscriptionFree = "free"
	JoinedLayout     = "2006-01-02 15:04"
)

var ErrNotFound = errors.New("користувача не знайдено")

type User struct {
	ID                 int64
	Name               string
	Subscription       string
	Language           string
	Format             Format
	IncludeDescription bool
	VideoPlusAudio     bool
	Downloads          int64
	Joined             time.Time
}

// DeliverCompanion true, коли разом з відео треба надіслати окреме аудіо.
// Для mp3 прапорець не має сенсу і ігнорується.
func (u *User) DeliverCompanion() bool {
	return u.VideoPlusAudio && u.Format.IsVideo()
}

// Profile дані, відомі при першому контакті.
type Profile struct {
	ID       int64
	Name     string
	Language string
}

// NewUser запис за замовчуванням для нового користувача.
func NewUser(p Profile, now time.Time) *User {
	name := p.Name
	if name == "" {
		name = "User"
	}
	u := &User{
		ID:                 p.ID,
		Name:               name,
		Subscription:       SubscriptionFree,
		Language:           p.Language,
		Format:             FormatMP4,
		IncludeDescription: true,
		VideoPlusAudio:     true,
		Joined:             now.Truncate(time.Minute),
	}
	normalize(u)
	return u
}

// normalize виправляє мову та формат на межі сховища. Повертає true, якщо щось змінилось.
func normalize(u *User) bool {
	changed := false
	if !supportedLanguage(u.Language) {
		u.Language = locale.Default
		changed = true
	}
	if f := ParseFormat(string(u.Format)); f != u.Format {
		u.Format = f
		changed = true
	}
	if u.Subscription == "" {
		u.Subscription = SubscriptionFree
		changed = true
	}
	return changed
}

func supportedLanguage(code string) bool {
	for _, l := range locale.Languages {
		if l == code {
			return true
		}
	}
	return false
}

// Store сховище налаштувань користувачів. Реалізації безпечні для конкурентного використання.
type Store interface {
	// GetOrCreate повертає копію запису, створюючи його при першому контакті.
	GetOrCreate(ctx context.Context, p Profile) (*User, error)
	// Save записує мову, формат і прапорці. Ім'я, дата реєстрації та лічильник не перезаписуються.
	Save(ctx context.Context, u *User) error
	// IncrementDownloads атомарно збільшує лічильник і повертає нове значення.
	IncrementDownloads(ctx context.Context, id int64) (int64, error)
	Close() error
}

// Open створює сховище за конфігурацією.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "json":
		return OpenJSON(cfg.Path, log)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr)
	}
	return nil, errors.Errorf("невідоме сховище %q", cfg.Backend)
}

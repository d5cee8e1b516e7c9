package config

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TransportWebhook = "webhook"
	TransportPolling = "polling"
	TransportMTProto = "mtproto"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Download DownloadConfig `mapstructure:"download"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	Transport   string `mapstructure:"transport"`
	AppID       int    `mapstructure:"app_id"`
	APIHash     string `mapstructure:"api_hash"`
	SessionPath string `mapstructure:"session_path"`
}

type WebhookConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Path    string `mapstructure:"path"`
}

// URL повертає повну адресу вебхука, яку реєструємо в Telegram.
func (w WebhookConfig) URL() string {
	return strings.TrimRight(w.BaseURL, "/") + w.Path
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type DownloadConfig struct {
	Dir                 string        `mapstructure:"dir"`
	Timeout             time.Duration `mapstructure:"timeout"`
	AttachmentCeilingMB int64         `mapstructure:"attachment_ceiling_mb"`
	BlockedHosts        []string      `mapstructure:"blocked_hosts"`
	Workers             int           `mapstructure:"workers"`
	ShutdownGrace       time.Duration `mapstructure:"shutdown_grace"`
}

// AttachmentCeiling повертає ліміт вкладення в байтах.
func (d DownloadConfig) AttachmentCeiling() int64 {
	return d.AttachmentCeilingMB * 1024 * 1024
}

type CookiesConfig struct {
	TikTok    string `mapstructure:"tiktok"`
	Instagram string `mapstructure:"instagram"`
}

type ToolsConfig struct {
	Ytdlp      string        `mapstructure:"ytdlp"`
	Ffmpeg     string        `mapstructure:"ffmpeg"`
	GalleryDl  string        `mapstructure:"gallery_dl"`
	SelfUpdate bool          `mapstructure:"self_update"`
	Cookies    CookiesConfig `mapstructure:"cookies"`
}

type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

// Load читає .env, config.yaml (якщо є) та змінні оточення.
// path може бути порожнім, тоді шукаємо config.yaml у робочій директорії.
func Load(path string) (*Config, *viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, errors.Wrap(err, "читання конфігурації")
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "розбір конфігурації")
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook/" + uuid.NewString()
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		cfg.Webhook.Path = "/" + cfg.Webhook.Path
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "users.json" {
		cfg.Store.Path = "users.db"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.transport", TransportWebhook)
	v.SetDefault("telegram.session_path", "session.db")
	v.SetDefault("http.port", 10000)
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.timeout", 10*time.Minute)
	v.SetDefault("download.attachment_ceiling_mb", 50)
	v.SetDefault("download.blocked_hosts", []string{"youtube.com", "youtu.be"})
	v.SetDefault("download.workers", 4)
	v.SetDefault("download.shutdown_grace", 30*time.Second)
	v.SetDefault("tools.ytdlp", "yt-dlp")
	v.SetDefault("tools.ffmpeg", "ffmpeg")
	v.SetDefault("tools.gallery_dl", "")
	v.SetDefault("tools.self_update", false)
	v.SetDefault("tools.cookies.tiktok", "")
	v.SetDefault("tools.cookies.instagram", "")
	v.SetDefault("store.backend", "json")
	v.SetDefault("store.path", "users.json")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "bot.log")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.development", false)
	v.SetDefault("webhook.base_url", "")
	v.SetDefault("webhook.path", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.app_id", 0)
	v.SetDefault("telegram.api_hash", "")
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	aliases := map[string][]string{
		"telegram.token":     {"BOT_TOKEN", "TOKEN", "TELEGRAM_TOKEN"},
		"telegram.transport": {"TRANSPORT"},
		"telegram.app_id":    {"APP_ID"},
		"telegram.api_hash":  {"API_HASH"},
		"webhook.base_url":   {"WEBHOOK_HOST"},
		"http.port":          {"PORT"},
		"store.backend":      {"STORE_BACKEND"},
		"store.redis_addr":   {"REDIS_ADDR"},
		"log.level":          {"LOG_LEVEL"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return errors.Wrapf(err, "прив'язка %s", key)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" || !strings.Contains(c.Telegram.Token, ":") {
		return errors.New("BOT_TOKEN не задано або має невірний формат")
	}
	switch c.Telegram.Transport {
	case TransportWebhook:
		if c.Webhook.BaseURL == "" {
			return errors.New("WEBHOOK_HOST обов'язковий для режиму webhook")
		}
	case TransportPolling:
	case TransportMTProto:
		if c.Telegram.AppID == 0 || c.Telegram.APIHash == "" {
			return errors.New("APP_ID та API_HASH обов'язкові для режиму mtproto")
		}
	default:
		return errors.Errorf("невідомий транспорт %q", c.Telegram.Transport)
	}
	switch c.Store.Backend {
	case "json", "sqlite":
		if c.Store.Path == "" {
			return errors.Errorf("store.path обов'язковий для %s", c.Store.Backend)
		}
	case "memory", "redis":
	default:
		return errors.Errorf("невідоме сховище %q", c.Store.Backend)
	}
	if c.HTTP.Port <= 0 {
		return errors.Errorf("невірний порт %d", c.HTTP.Port)
	}
	if c.Download.Workers <= 0 {
		return errors.Errorf("download.workers має бути > 0, отримано %d", c.Download.Workers)
	}
	if c.Download.AttachmentCeilingMB <= 0 {
		return errors.New("download.attachment_ceiling_mb має бути > 0")
	}
	return nil
}

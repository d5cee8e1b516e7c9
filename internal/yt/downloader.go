package yt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Runner запускає зовнішню програму і повертає її об'єднаний вивід.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

// Run при скасуванні ctx вбиває всю групу процесів: yt-dlp запускає ffmpeg,
// який інакше дописує файли вже після прибирання.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	killGroup(cmd)
	cmd.WaitDelay = 5 * time.Second
	return cmd.CombinedOutput()
}

// ExtractionError ненульовий код виходу, таймаут або помилка запуску інструмента.
// Output лише для логів, користувачу не показується.
type ExtractionError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

const maxLoggedOutput = 4000

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxLoggedOutput {
		return "…" + s[len(s)-maxLoggedOutput:]
	}
	return s
}

type ExtractorConfig struct {
	Ytdlp     string
	GalleryDl string
	Timeout   time.Duration
}

// Extractor запускає yt-dlp для запиту. Одна спроба; gallery-dl лише як запасний
// варіант для спеціалізованих платформ, якщо він налаштований.
type Extractor struct {
	runner Runner
	cfg    ExtractorConfig
	log    *zap.Logger
}

func NewExtractor(runner Runner, cfg ExtractorConfig, log *zap.Logger) *Extractor {
	if cfg.Ytdlp == "" {
		cfg.Ytdlp = "yt-dlp"
	}
	return &Extractor{runner: runner, cfg: cfg, log: log}
}

func (e *Extractor) Extract(ctx context.Context, r Request) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return &ExtractionError{Tool: "fs", Err: errors.Wrap(err, "директорія завантажень")}
	}

	err := e.run(ctx, e.cfg.Ytdlp, BuildArgs(r))
	if err == nil {
		e.log.Info("yt-dlp завантажив", zap.String("url", r.URL), zap.Stringer("category", r.Category))
		return nil
	}
	e.log.Warn("yt-dlp помилка",
		zap.String("url", r.URL),
		zap.Stringer("category", r.Category),
		zap.Error(err.Err),
		zap.String("output", err.Output),
	)

	if e.cfg.GalleryDl == "" || !r.Category.Specialized() || ctx.Err() != nil {
		return err
	}
	if gerr := e.run(ctx, e.cfg.GalleryDl, galleryArgs(r)); gerr != nil {
		e.log.Warn("gallery-dl помилка", zap.String("url", r.URL), zap.Error(gerr.Err), zap.String("output", gerr.Output))
		return err
	}
	e.log.Info("gallery-dl завантажив", zap.String("url", r.URL))
	return nil
}

func (e *Extractor) run(ctx context.Context, tool string, args []string) *ExtractionError {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	out, err := e.runner.Run(ctx, tool, args...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		err = errors.Wrap(ctx.Err(), err.Error())
	}
	return &ExtractionError{Tool: tool, Output: tail(out), Err: err}
}

package yt

import (
	"context"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// UpdateYtdlp запускає `yt-dlp -U`. Помилка не фатальна: бот працює з поточною версією.
func UpdateYtdlp(ctx context.Context, runner Runner, bin string, log *zap.Logger) string {
	log.Info("Перевірка оновлення yt-dlp")
	out, err := runner.Run(ctx, bin, "-U")
	if err != nil {
		log.Warn("yt-dlp -U помилка", zap.Error(err), zap.String("output", tail(out)))
		return string(out)
	}
	log.Info("yt-dlp оновлення", zap.String("output", tail(out)))
	return string(out)
}

// Version повертає перший рядок `<bin> --version` або "".
func Version(ctx context.Context, runner Runner, bin string, flag string) string {
	out, err := runner.Run(ctx, bin, flag)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line
}

// CheckTools перевіряє наявність програм у PATH. Повертає ті, яких не знайдено.
func CheckTools(bins ...string) []string {
	var missing []string
	for _, b := range bins {
		if b == "" {
			continue
		}
		if _, err := exec.LookPath(b); err != nil {
			missing = append(missing, b)
		}
	}
	return missing
}

package yt

import (
	"fmt"
	"path/filepath"

	"github.com/Geergon/tg-media-downloader/internal/database"
)

const (
	tiktokUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	tiktokReferer   = "https://www.tiktok.com/"
	instaReferer    = "https://www.instagram.com/"
)

// Request одне завантаження. Prefix однозначно ідентифікує файли цього запиту в Dir.
type Request struct {
	URL       string
	Category  Category
	Format    database.Format
	Companion bool
	Dir       string
	Prefix    string
	Cookies   string
}

// NamePrefix будує унікальний префікс файлів: чат + токен запиту.
func NamePrefix(chatID int64, token string) string {
	return fmt.Sprintf("%d_%s", chatID, token)
}

// OutputTemplate шаблон -o для yt-dlp.
func (r Request) OutputTemplate() string {
	return filepath.Join(r.Dir, r.Prefix+"_%(autonumber)s.%(ext)s")
}

// BuildArgs повертає аргументи yt-dlp для запиту. Чиста функція, помилок не буває.
func BuildArgs(r Request) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--write-info-json",
		"--output", r.OutputTemplate(),
	}
	args = append(args, formatArgs(r.Format, r.Companion)...)
	args = append(args, platformArgs(r.Category)...)
	if r.Cookies != "" {
		args = append(args, "--cookies", r.Cookies)
	}
	return append(args, r.URL)
}

func formatArgs(f database.Format, companion bool) []string {
	if !f.IsVideo() {
		return []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3"}
	}

	selector := "b/bv*+ba"
	if companion {
		// спочатку окремі потоки відео і аудіо, щоб аудіо можна було потім виділити без втрат
		selector = "bv+ba/bv*+ba/b"
	}
	sort := "ext:mp4:m4a"
	if f == database.FormatWebM {
		sort = "ext:webm"
	}
	return []string{"-f", selector, "-S", sort, "--merge-output-format", string(f)}
}

func platformArgs(c Category) []string {
	switch c {
	case TikTok:
		return []string{
			"--add-header", "Referer:" + tiktokReferer,
			"--user-agent", tiktokUserAgent,
			"--force-ipv4",
		}
	case Instagram:
		return []string{
			"--add-header", "Referer:" + instaReferer,
			"--no-check-certificate",
		}
	}
	return nil
}

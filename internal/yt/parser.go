package yt

import (
	"net/url"
	"strings"
)

type Category int

const (
	Generic Category = iota
	Blocked
	TikTok
	Instagram
)

func (c Category) String() string {
	switch c {
	case Blocked:
		return "blocked"
	case TikTok:
		return "tiktok"
	case Instagram:
		return "instagram"
	}
	return "generic"
}

// Specialized true для платформ з власними аргументами yt-dlp.
func (c Category) Specialized() bool {
	return c == TikTok || c == Instagram
}

var (
	tiktokMarkers    = []string{"tiktok.com"}
	instagramMarkers = []string{"instagram.com", "instagr.am"}
)

// Classifier визначає категорію посилання без звернень до мережі.
// Заблоковані хости мають пріоритет над спеціалізованими, ті над загальним випадком.
type Classifier struct {
	blocked []string
}

func NewClassifier(blockedHosts []string) *Classifier {
	blocked := make([]string, 0, len(blockedHosts))
	for _, h := range blockedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			blocked = append(blocked, h)
		}
	}
	return &Classifier{blocked: blocked}
}

func (c *Classifier) Classify(rawURL string) Category {
	u := strings.ToLower(rawURL)
	switch {
	case containsAny(u, c.blocked):
		return Blocked
	case containsAny(u, tiktokMarkers):
		return TikTok
	case containsAny(u, instagramMarkers):
		return Instagram
	}
	return Generic
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func IsUrl(str string) bool {
	u, err := url.Parse(str)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// LooksLikeURL true для тексту, що починається зі схеми http(s), навіть якщо хоста немає.
func LooksLikeURL(str string) bool {
	s := strings.ToLower(strings.TrimSpace(str))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// FindURL повертає перше посилання з тексту повідомлення.
func FindURL(text string) (string, bool) {
	for _, field := range strings.Fields(text) {
		if LooksLikeURL(field) && IsUrl(field) {
			return field, true
		}
	}
	return "", false
}

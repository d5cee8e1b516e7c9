package yt

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	}
	return "unknown"
}

var ErrNoArtifact = errors.New("файлів після завантаження не знайдено")

var kinds = map[string]Kind{
	".mp4": KindVideo, ".webm": KindVideo, ".mkv": KindVideo, ".mov": KindVideo, ".m4v": KindVideo,
	".mp3": KindAudio, ".m4a": KindAudio, ".aac": KindAudio, ".ogg": KindAudio, ".opus": KindAudio,
	".wav": KindAudio, ".flac": KindAudio,
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".webp": KindImage, ".gif": KindImage,
}

func KindOf(path string) Kind {
	return kinds[strings.ToLower(filepath.Ext(path))]
}

type Artifact struct {
	Path string
	Kind Kind
	Size int64
}

// Resolve шукає файли запиту за префіксом. Повертає файли для надсилання в порядку
// лістингу і всі знайдені шляхи (разом з .info.json та іншими) для прибирання.
// Якщо надсилати нічого, повертає ErrNoArtifact, але all все одно заповнений.
func Resolve(dir, prefix string) (artifacts []Artifact, all []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.Wrap(err, "пошук файлів")
	}
	// шлях директорії не шаблон: дужки чи зірочки в ньому не заважають пошуку
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			all = append(all, filepath.Join(dir, e.Name()))
		}
	}

	for _, path := range all {
		kind := KindOf(path)
		if kind == KindUnknown {
			continue
		}
		st, err := os.Stat(path)
		if err != nil || st.IsDir() {
			continue
		}
		artifacts = append(artifacts, Artifact{Path: path, Kind: kind, Size: st.Size()})
	}
	if len(artifacts) == 0 {
		return nil, all, ErrNoArtifact
	}
	return artifacts, all, nil
}

// InfoFile перший .info.json серед знайдених файлів.
func InfoFile(paths []string) (string, bool) {
	for _, p := range paths {
		if strings.HasSuffix(p, ".info.json") {
			return p, true
		}
	}
	return "", false
}

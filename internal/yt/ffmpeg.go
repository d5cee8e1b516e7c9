package yt

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
)

// Transcoder виділяє аудіодоріжку з відео в окремий mp3.
type Transcoder struct {
	runner Runner
	bin    string
}

func NewTranscoder(runner Runner, bin string) *Transcoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Transcoder{runner: runner, bin: bin}
}

// AudioPath шлях супутнього аудіо поруч з відео, з тим самим префіксом.
func AudioPath(video string) string {
	return strings.TrimSuffix(video, filepath.Ext(video)) + "_audio.mp3"
}

// ExtractAudio вважається успішним лише якщо вихідний файл існує і не порожній.
func (t *Transcoder) ExtractAudio(ctx context.Context, video string) (string, error) {
	out := AudioPath(video)
	output, err := t.runner.Run(ctx, t.bin,
		"-y", "-loglevel", "error",
		"-i", video,
		"-vn", "-c:a", "libmp3lame", "-q:a", "2",
		out,
	)
	if err != nil {
		return out, &ExtractionError{Tool: t.bin, Output: tail(output), Err: err}
	}
	st, err := os.Stat(out)
	if err != nil {
		return out, errors.Wrap(err, "ffmpeg не створив аудіо")
	}
	if st.Size() == 0 {
		return out, errors.New("ffmpeg створив порожній файл")
	}
	return out, nil
}

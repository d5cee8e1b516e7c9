package database

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// jsonRecord формат users.json першої версії бота. audio_only лише читається і мігрує у format.
type jsonRecord struct {
	Name               string `json:"name"`
	Subscription       string `json:"subscription"`
	VideosDownloaded   int64  `json:"videos_downloaded"`
	Joined             string `json:"joined"`
	Language           string `json:"language"`
	Format             string `json:"format"`
	AudioOnly          *bool  `json:"audio_only,omitempty"`
	IncludeDescription *bool  `json:"include_description,omitempty"`
	VideoPlusAudio     *bool  `json:"video_plus_audio,omitempty"`
}

// JSONFile зберігає всіх користувачів в одному файлі. Кожна зміна одразу пишеться на диск
// під м'ютексом через тимчасовий файл і rename.
type JSONFile struct {
	mu    sync.Mutex
	path  string
	users map[int64]*User
	log   *zap.Logger
	now   func() time.Time
}

func OpenJSON(path string, log *zap.Logger) (*JSONFile, error) {
	s := &JSONFile{path: path, users: make(map[int64]*User), log: log, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, errors.Wrap(err, "читання бази користувачів")
	}
	if len(data) == 0 {
		return s, nil
	}

	var raw map[string]jsonRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "розбір %s", path)
	}

	migrated := 0
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			log.Warn("Пропускаю запис з невірним id", zap.String("id", key))
			continue
		}
		u, changed := fromRecord(id, rec, s.now())
		if changed {
			migrated++
		}
		s.users[id] = u
	}
	if migrated > 0 {
		log.Info("Мігровано записи користувачів", zap.Int("count", migrated))
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func fromRecord(id int64, rec jsonRecord, now time.Time) (*User, bool) {
	changed := false
	u := &User{
		ID:                 id,
		Name:               rec.Name,
		Subscription:       rec.Subscription,
		Language:           rec.Language,
		Format:             Format(rec.Format),
		IncludeDescription: true,
		VideoPlusAudio:     true,
		Downloads:          rec.VideosDownloaded,
	}
	if rec.IncludeDescription != nil {
		u.IncludeDescription = *rec.IncludeDescription
	} else {
		changed = true
	}
	if rec.VideoPlusAudio != nil {
		u.VideoPlusAudio = *rec.VideoPlusAudio
	} else {
		changed = true
	}
	if rec.AudioOnly != nil {
		if *rec.AudioOnly {
			u.Format = FormatMP3
		}
		changed = true
	}

	joined, err := time.ParseInLocation(JoinedLayout, rec.Joined, time.Local)
	if err != nil {
		joined = now.Truncate(time.Minute)
		changed = true
	}
	u.Joined = joined

	if normalize(u) {
		changed = true
	}
	return u, changed
}

func toRecord(u *User) jsonRecord {
	desc, vpa := u.IncludeDescription, u.VideoPlusAudio
	return jsonRecord{
		Name:               u.Name,
		Subscription:       u.Subscription,
		VideosDownloaded:   u.Downloads,
		Joined:             u.Joined.Format(JoinedLayout),
		Language:           u.Language,
		Format:             string(u.Format),
		IncludeDescription: &desc,
		VideoPlusAudio:     &vpa,
	}
}

// flush викликається під s.mu.
func (s *JSONFile) flush() error {
	raw := make(map[string]jsonRecord, len(s.users))
	for id, u := range s.users {
		raw[strconv.FormatInt(id, 10)] = toRecord(u)
	}
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return errors.Wrap(err, "серіалізація користувачів")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "створення директорії бази")
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "запис бази користувачів")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "заміна файлу бази")
	}
	return nil
}

func (s *JSONFile) GetOrCreate(_ context.Context, p Profile) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[p.ID]
	if !ok {
		u = NewUser(p, s.now())
		s.users[p.ID] = u
		if err := s.flush(); err != nil {
			cp := *u
			return &cp, err
		}
	} else if normalize(u) {
		if err := s.flush(); err != nil {
			s.log.Warn("Не вдалося зберегти виправлений запис", zap.Int64("user_id", p.ID), zap.Error(err))
		}
	}
	cp := *u
	return &cp, nil
}

func (s *JSONFile) Save(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	applySettings(cur, u)
	return s.flush()
}

func (s *JSONFile) IncrementDownloads(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.Downloads++
	return u.Downloads, s.flush()
}

func (s *JSONFile) Close() error { return nil }

package database

import (
	"context"
	"sync"
	"time"
)

type Memory struct {
	mu    sync.Mutex
	users map[int64]*User
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{users: make(map[int64]*User), now: time.Now}
}

func (m *Memory) GetOrCreate(_ context.Context, p Profile) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[p.ID]
	if !ok {
		u = NewUser(p, m.now())
		m.users[p.ID] = u
	}
	normalize(u)
	cp := *u
	return &cp, nil
}

func (m *Memory) Save(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	applySettings(cur, u)
	return nil
}

func (m *Memory) IncrementDownloads(_ context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.Downloads++
	return u.Downloads, nil
}

func (m *Memory) Close() error { return nil }

// applySettings переносить змінювані користувачем поля.
func applySettings(dst, src *User) {
	dst.Language = src.Language
	dst.Format = src.Format
	dst.IncludeDescription = src.IncludeDescription
	dst.VideoPlusAudio = src.VideoPlusAudio
	normalize(dst)
}

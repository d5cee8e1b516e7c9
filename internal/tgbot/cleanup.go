package tgbot

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/messenger"
)

// cleanup запам'ятовує все, що створив запит, і прибирає це один раз.
// Помилки видалення лише логуються.
type cleanup struct {
	gw     messenger.Gateway
	log    *zap.Logger
	chatID int64

	mu       sync.Mutex
	paths    []string
	seen     map[string]struct{}
	statusID int
	done     bool
}

func newCleanup(gw messenger.Gateway, chatID int64, log *zap.Logger) *cleanup {
	return &cleanup{gw: gw, chatID: chatID, log: log, seen: map[string]struct{}{}}
}

func (c *cleanup) Track(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := c.seen[p]; ok {
			continue
		}
		c.seen[p] = struct{}{}
		c.paths = append(c.paths, p)
	}
}

func (c *cleanup) Status(messageID int) {
	c.mu.Lock()
	c.statusID = messageID
	c.mu.Unlock()
}

func (c *cleanup) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

// Run видаляє файли і статусне повідомлення. Повторний виклик нічого не робить.
func (c *cleanup) Run(ctx context.Context) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	paths, statusID := c.paths, c.statusID
	c.mu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.log.Warn("Не вдалося видалити файл", zap.String("path", p), zap.Error(err))
		}
	}
	if statusID != 0 {
		if err := c.gw.DeleteMessage(context.WithoutCancel(ctx), c.chatID, statusID); err != nil {
			c.log.Debug("Не вдалося видалити статусне повідомлення", zap.Error(err))
		}
	}
}

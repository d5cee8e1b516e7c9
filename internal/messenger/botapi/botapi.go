package botapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/messenger"
)

// Gateway реалізація messenger.Gateway поверх Bot API.
type Gateway struct {
	api *tgbotapi.BotAPI
	log *zap.Logger
}

func New(token string, log *zap.Logger) (*Gateway, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "ініціалізація бота")
	}
	return NewWithAPI(api, log), nil
}

// NewWithAPI для власного endpoint або http-клієнта.
func NewWithAPI(api *tgbotapi.BotAPI, log *zap.Logger) *Gateway {
	return &Gateway{api: api, log: log}
}

func (g *Gateway) Username() string { return g.api.Self.UserName }

func markup(kb *messenger.Keyboard) any {
	if kb == nil {
		return nil
	}
	if kb.Inline {
		return inlineMarkup(kb)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]tgbotapi.KeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

func inlineMarkup(kb *messenger.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (g *Gateway) SendText(_ context.Context, chatID int64, text string, kb *messenger.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if m := markup(kb); m != nil {
		msg.ReplyMarkup = m
	}
	sent, err := g.api.Send(msg)
	if err != nil {
		return 0, errors.Wrap(err, "sendMessage")
	}
	return sent.MessageID, nil
}

func (g *Gateway) SendVideo(_ context.Context, chatID int64, f messenger.File) error {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(f.Path))
	v.Caption = f.Caption
	v.SupportsStreaming = true
	_, err := g.api.Send(v)
	return wrap(err, "sendVideo")
}

func (g *Gateway) SendAudio(_ context.Context, chatID int64, f messenger.File) error {
	a := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(f.Path))
	a.Caption = f.Caption
	a.Title = f.Title
	_, err := g.api.Send(a)
	return wrap(err, "sendAudio")
}

func (g *Gateway) SendPhoto(_ context.Context, chatID int64, f messenger.File) error {
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(f.Path))
	p.Caption = f.Caption
	_, err := g.api.Send(p)
	return wrap(err, "sendPhoto")
}

func (g *Gateway) SendDocument(_ context.Context, chatID int64, f messenger.File) error {
	d := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(f.Path))
	d.Caption = f.Caption
	_, err := g.api.Send(d)
	return wrap(err, "sendDocument")
}

func (g *Gateway) SendPhotoGroup(_ context.Context, chatID int64, files []messenger.File) error {
	if len(files) == 0 {
		return nil
	}
	if len(files) > messenger.MaxGroupSize {
		return errors.Errorf("альбом з %d файлів, максимум %d", len(files), messenger.MaxGroupSize)
	}
	group := make([]any, 0, len(files))
	for _, f := range files {
		p := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(f.Path))
		p.Caption = f.Caption
		group = append(group, p)
	}
	_, err := g.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, group))
	return wrap(err, "sendMediaGroup")
}

func (g *Gateway) EditText(_ context.Context, chatID int64, messageID int, text string, kb *messenger.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if kb != nil && kb.Inline {
		m := inlineMarkup(kb)
		edit.ReplyMarkup = &m
	}
	_, err := g.api.Request(edit)
	return ignoreNotModified(wrap(err, "editMessageText"))
}

func (g *Gateway) EditKeyboard(_ context.Context, chatID int64, messageID int, kb *messenger.Keyboard) error {
	m := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if kb != nil && len(kb.Rows) > 0 {
		m = inlineMarkup(kb)
	}
	_, err := g.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, m))
	return ignoreNotModified(wrap(err, "editMessageReplyMarkup"))
}

func (g *Gateway) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	_, err := g.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return wrap(err, "deleteMessage")
}

func (g *Gateway) AnswerCallback(_ context.Context, callbackID string, text string) error {
	_, err := g.api.Request(tgbotapi.NewCallback(callbackID, text))
	return wrap(err, "answerCallbackQuery")
}

func wrap(err error, method string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, method)
}

// ignoreNotModified Telegram повертає помилку, якщо нова розмітка збігається зі старою.
func ignoreNotModified(err error) error {
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// Convert перетворює оновлення Bot API. false для типів, які бот не обробляє.
func Convert(u tgbotapi.Update) (messenger.Update, bool) {
	switch {
	case u.Message != nil && u.Message.Text != "":
		m := u.Message
		return messenger.Update{Message: &messenger.Message{
			ID:     m.MessageID,
			ChatID: m.Chat.ID,
			From:   convertUser(m.From),
			Text:   m.Text,
		}}, true
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		cb := &messenger.Callback{ID: q.ID, From: convertUser(q.From), Data: q.Data}
		if q.Message != nil {
			cb.ChatID = q.Message.Chat.ID
			cb.MessageID = q.Message.MessageID
		}
		return messenger.Update{Callback: cb}, true
	}
	return messenger.Update{}, false
}

func convertUser(u *tgbotapi.User) messenger.User {
	if u == nil {
		return messenger.User{}
	}
	return messenger.User{ID: u.ID, FirstName: u.FirstName, Username: u.UserName, LanguageCode: u.LanguageCode}
}

// ParseWebhook розбирає тіло POST-запиту вебхука.
func (g *Gateway) ParseWebhook(r *http.Request) (messenger.Update, bool, error) {
	u, err := g.api.HandleUpdate(r)
	if err != nil {
		return messenger.Update{}, false, errors.Wrap(err, "розбір оновлення")
	}
	upd, ok := Convert(*u)
	return upd, ok, nil
}

// SetWebhook реєструє адресу вебхука з повторними спробами: при старті мережа може бути ще недоступна.
func (g *Gateway) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return errors.Wrap(err, "адреса вебхука")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = time.Minute

	return backoff.RetryNotify(func() error {
		_, err := g.api.Request(wh)
		return err
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		g.log.Warn("Не вдалося встановити вебхук, повтор", zap.Error(err), zap.Duration("next", next))
	})
}

func (g *Gateway) DeleteWebhook() error {
	_, err := g.api.Request(tgbotapi.DeleteWebhookConfig{})
	return wrap(err, "deleteWebhook")
}

// Poll long polling до скасування ctx. Для локального запуску без публічної адреси.
func (g *Gateway) Poll(ctx context.Context, h messenger.Handler) error {
	if err := g.DeleteWebhook(); err != nil {
		return err
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := g.api.GetUpdatesChan(cfg)
	g.log.Info("Long polling запущено", zap.String("bot", g.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			g.api.StopReceivingUpdates()
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if upd, ok := Convert(u); ok {
				h(ctx, upd)
			}
		}
	}
}

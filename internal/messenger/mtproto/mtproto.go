// Package mtproto шлюз через MTProto (gotgproto). Дозволяє вивантажувати файли до 2 ГБ,
// альбоми надсилаються через Bot API, як і раніше.
package mtproto

import (
	"context"
	"mime"
	"path/filepath"
	"strconv"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/config"
	"github.com/Geergon/tg-media-downloader/internal/messenger"
)

type Gateway struct {
	client *gotgproto.Client
	ctx    *ext.Context
	// groups надсилає альбоми.
	groups messenger.Gateway
	log    *zap.Logger
}

func New(cfg config.TelegramConfig, groups messenger.Gateway, log *zap.Logger) (*Gateway, error) {
	client, err := gotgproto.NewClient(
		cfg.AppID,
		cfg.APIHash,
		gotgproto.ClientTypeBot(cfg.Token),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open(cfg.SessionPath)),
			DisableCopyright: true,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "запуск MTProto клієнта")
	}
	return &Gateway{client: client, ctx: client.CreateContext(), groups: groups, log: log}, nil
}

func (g *Gateway) Username() string { return g.client.Self.Username }

// Run реєструє обробники і блокується до скасування ctx.
func (g *Gateway) Run(ctx context.Context, h messenger.Handler) error {
	d := g.client.Dispatcher
	d.AddHandler(handlers.NewMessage(filters.Message.Text, func(c *ext.Context, u *ext.Update) error {
		if upd, ok := convertMessage(u); ok {
			h(ctx, upd)
		}
		return nil
	}))
	d.AddHandler(handlers.NewCallbackQuery(filters.CallbackQuery.All, func(c *ext.Context, u *ext.Update) error {
		if upd, ok := convertCallback(u); ok {
			h(ctx, upd)
		}
		return nil
	}))

	g.log.Info("MTProto бот стартував", zap.String("bot", g.Username()))
	go func() {
		<-ctx.Done()
		g.client.Stop()
	}()
	err := g.client.Idle()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func convertUser(u *tg.User) messenger.User {
	if u == nil {
		return messenger.User{}
	}
	return messenger.User{ID: u.ID, FirstName: u.FirstName, Username: u.Username, LanguageCode: u.LangCode}
}

func convertMessage(u *ext.Update) (messenger.Update, bool) {
	m := u.EffectiveMessage
	if m == nil || m.Text == "" {
		return messenger.Update{}, false
	}
	return messenger.Update{Message: &messenger.Message{
		ID:     m.ID,
		ChatID: u.EffectiveChat().GetID(),
		From:   convertUser(u.EffectiveUser()),
		Text:   m.Text,
	}}, true
}

func convertCallback(u *ext.Update) (messenger.Update, bool) {
	q := u.CallbackQuery
	if q == nil {
		return messenger.Update{}, false
	}
	return messenger.Update{Callback: &messenger.Callback{
		ID:        strconv.FormatInt(q.QueryID, 10),
		ChatID:    u.EffectiveChat().GetID(),
		MessageID: q.MsgID,
		From:      convertUser(u.EffectiveUser()),
		Data:      string(q.Data),
	}}, true
}

func replyMarkup(kb *messenger.Keyboard) tg.ReplyMarkupClass {
	if kb == nil {
		return nil
	}
	if kb.Inline {
		rows := make([]tg.KeyboardButtonRow, 0, len(kb.Rows))
		for _, r := range kb.Rows {
			row := tg.KeyboardButtonRow{}
			for _, b := range r {
				row.Buttons = append(row.Buttons, &tg.KeyboardButtonCallback{Text: b.Text, Data: []byte(b.Data)})
			}
			rows = append(rows, row)
		}
		return &tg.ReplyInlineMarkup{Rows: rows}
	}
	rows := make([]tg.KeyboardButtonRow, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := tg.KeyboardButtonRow{}
		for _, b := range r {
			row.Buttons = append(row.Buttons, &tg.KeyboardButton{Text: b.Text})
		}
		rows = append(rows, row)
	}
	return &tg.ReplyKeyboardMarkup{Resize: true, Rows: rows}
}

func (g *Gateway) SendText(_ context.Context, chatID int64, text string, kb *messenger.Keyboard) (int, error) {
	req := &tg.MessagesSendMessageRequest{Message: text}
	if m := replyMarkup(kb); m != nil {
		req.ReplyMarkup = m
	}
	sent, err := g.ctx.SendMessage(chatID, req)
	if err != nil {
		return 0, errors.Wrap(err, "sendMessage")
	}
	return sent.GetID(), nil
}

func mimeOf(path, fallback string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return fallback
}

type docKind int

const (
	docVideo docKind = iota
	docAudio
	docFile
)

// documentMedia будує вкладення для вже вивантаженого файлу.
func documentMedia(file tg.InputFileClass, f messenger.File, kind docKind) *tg.InputMediaUploadedDocument {
	name := filepath.Base(f.Path)
	media := &tg.InputMediaUploadedDocument{
		File: file,
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeFilename{FileName: name},
		},
	}
	switch kind {
	case docVideo:
		media.MimeType = mimeOf(f.Path, "video/mp4")
		media.Attributes = append(media.Attributes, &tg.DocumentAttributeVideo{SupportsStreaming: true})
	case docAudio:
		media.MimeType = mimeOf(f.Path, "audio/mpeg")
		media.Attributes = append(media.Attributes, &tg.DocumentAttributeAudio{Title: f.Title})
	default:
		media.MimeType = mimeOf(f.Path, "application/octet-stream")
		media.ForceFile = true
	}
	return media
}

func (g *Gateway) upload(ctx context.Context, path string) (tg.InputFileClass, error) {
	file, err := uploader.NewUploader(g.ctx.Raw).FromPath(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, "вивантаження файлу")
	}
	return file, nil
}

func (g *Gateway) sendMedia(chatID int64, media tg.InputMediaClass, caption string) error {
	_, err := g.ctx.SendMedia(chatID, &tg.MessagesSendMediaRequest{Media: media, Message: caption})
	if err != nil {
		return errors.Wrap(err, "sendMedia")
	}
	return nil
}

func (g *Gateway) sendDocument(ctx context.Context, chatID int64, f messenger.File, kind docKind) error {
	file, err := g.upload(ctx, f.Path)
	if err != nil {
		return err
	}
	return g.sendMedia(chatID, documentMedia(file, f, kind), f.Caption)
}

func (g *Gateway) SendVideo(ctx context.Context, chatID int64, f messenger.File) error {
	return g.sendDocument(ctx, chatID, f, docVideo)
}

func (g *Gateway) SendAudio(ctx context.Context, chatID int64, f messenger.File) error {
	return g.sendDocument(ctx, chatID, f, docAudio)
}

func (g *Gateway) SendDocument(ctx context.Context, chatID int64, f messenger.File) error {
	return g.sendDocument(ctx, chatID, f, docFile)
}

func (g *Gateway) SendPhoto(ctx context.Context, chatID int64, f messenger.File) error {
	file, err := g.upload(ctx, f.Path)
	if err != nil {
		return err
	}
	return g.sendMedia(chatID, &tg.InputMediaUploadedPhoto{File: file}, f.Caption)
}

func (g *Gateway) SendPhotoGroup(ctx context.Context, chatID int64, files []messenger.File) error {
	return g.groups.SendPhotoGroup(ctx, chatID, files)
}

func (g *Gateway) EditText(_ context.Context, chatID int64, messageID int, text string, kb *messenger.Keyboard) error {
	req := &tg.MessagesEditMessageRequest{ID: messageID, Message: text}
	if kb != nil && kb.Inline {
		req.ReplyMarkup = replyMarkup(kb)
	}
	if _, err := g.ctx.EditMessage(chatID, req); err != nil {
		return errors.Wrap(err, "editMessage")
	}
	return nil
}

func (g *Gateway) EditKeyboard(_ context.Context, chatID int64, messageID int, kb *messenger.Keyboard) error {
	req := &tg.MessagesEditMessageRequest{ID: messageID, ReplyMarkup: &tg.ReplyInlineMarkup{}}
	if kb != nil {
		req.ReplyMarkup = replyMarkup(kb)
	}
	if _, err := g.ctx.EditMessage(chatID, req); err != nil {
		return errors.Wrap(err, "editMessage markup")
	}
	return nil
}

func (g *Gateway) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if err := g.ctx.DeleteMessages(chatID, []int{messageID}); err != nil {
		return errors.Wrap(err, "deleteMessages")
	}
	return nil
}

func (g *Gateway) AnswerCallback(_ context.Context, callbackID string, text string) error {
	id, err := strconv.ParseInt(callbackID, 10, 64)
	if err != nil {
		return errors.Wrap(err, "id callback")
	}
	if _, err := g.ctx.AnswerCallback(&tg.MessagesSetBotCallbackAnswerRequest{QueryID: id, Message: text}); err != nil {
		return errors.Wrap(err, "answerCallback")
	}
	return nil
}

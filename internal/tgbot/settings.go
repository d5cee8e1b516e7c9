package tgbot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/locale"
	"github.com/Geergon/tg-media-downloader/internal/messenger"
)

const (
	langPrefix   = "lang_"
	formatPrefix = "toggle_format_"
	toggleDesc   = "toggle_desc"
	toggleVPA    = "toggle_vpa"
)

func boolToEmoji(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}

func (b *Bot) settingsKeyboard(u *database.User) *messenger.Keyboard {
	lang := u.Language
	format := func(f database.Format) messenger.Button {
		text := strings.ToUpper(string(f))
		if u.Format == f {
			text = "• " + text + " •"
		}
		return messenger.Button{Text: text, Data: formatPrefix + string(f)}
	}
	return messenger.InlineKeyboard(
		[]messenger.Button{format(database.FormatMP4), format(database.FormatMP3)},
		[]messenger.Button{format(database.FormatWebM)},
		[]messenger.Button{{
			Text: b.t(lang, "lbl_description") + ": " + b.yesNo(lang, u.IncludeDescription),
			Data: toggleDesc,
		}},
		[]messenger.Button{{
			Text: b.t(lang, "lbl_video_plus_audio") + ": " + boolToEmoji(u.VideoPlusAudio),
			Data: toggleVPA,
		}},
	)
}

func (b *Bot) answer(ctx context.Context, id, text string) {
	if err := b.gw.AnswerCallback(ctx, id, text); err != nil {
		b.log.Warn("Помилка відповіді на callback", zap.String("callback_id", id), zap.Error(err))
	}
}

func (b *Bot) onCallback(ctx context.Context, c *messenger.Callback) {
	u := b.user(ctx, c.From)
	if strings.HasPrefix(c.Data, langPrefix) {
		b.onLanguage(ctx, c, u)
		return
	}

	switch {
	case strings.HasPrefix(c.Data, formatPrefix):
		f := database.Format(strings.TrimPrefix(c.Data, formatPrefix))
		if database.ParseFormat(string(f)) != f {
			b.answer(ctx, c.ID, b.t(u.Language, "unknown_action"))
			return
		}
		u.Format = f
	case c.Data == toggleDesc:
		u.IncludeDescription = !u.IncludeDescription
	case c.Data == toggleVPA:
		u.VideoPlusAudio = !u.VideoPlusAudio
	default:
		b.log.Info("Невідомий callback", zap.String("data", c.Data), zap.Int64("chat_id", c.ChatID))
		b.answer(ctx, c.ID, b.t(u.Language, "unknown_action"))
		return
	}

	if err := b.store.Save(ctx, u); err != nil {
		b.log.Error("Помилка збереження налаштувань", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	b.answer(ctx, c.ID, b.t(u.Language, "saved"))
	if err := b.gw.EditKeyboard(ctx, c.ChatID, c.MessageID, b.settingsKeyboard(u)); err != nil {
		b.log.Warn("Помилка оновлення клавіатури", zap.Int64("chat_id", c.ChatID), zap.Error(err))
	}
}

func (b *Bot) onLanguage(ctx context.Context, c *messenger.Callback, u *database.User) {
	code := strings.TrimPrefix(c.Data, langPrefix)
	if !b.cat.Supported(code) {
		b.answer(ctx, c.ID, b.t(u.Language, "unknown_language"))
		return
	}

	u.Language = code
	if err := b.store.Save(ctx, u); err != nil {
		b.log.Error("Помилка збереження мови", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	if err := b.gw.DeleteMessage(ctx, c.ChatID, c.MessageID); err != nil {
		b.log.Debug("Не вдалося видалити вибір мови", zap.Error(err))
	}
	b.answer(ctx, c.ID, "")
	b.send(ctx, c.ChatID, b.t(code, "lang_saved"), b.mainMenu(code))
	b.log.Info("Мову змінено", zap.Int64("user_id", u.ID), zap.String("language", locale.Name(code)))
}

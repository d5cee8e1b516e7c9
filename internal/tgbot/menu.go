package tgbot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/database"
	"github.com/Geergon/tg-media-downloader/internal/locale"
	"github.com/Geergon/tg-media-downloader/internal/messenger"
	"github.com/Geergon/tg-media-downloader/internal/yt"
)

const (
	cmdMenu         = "menu"
	cmdProfile      = "profile"
	cmdSettings     = "settings"
	cmdLanguage     = "language"
	cmdSubscription = "subscription"
	cmdHelp         = "help"
	cmdBack         = "back"
)

// aliases додаткові слова для кнопок меню, крім підписів з каталогу.
// Порядок важливий: перша команда, що збіглася, перемагає.
var aliases = []struct {
	name  string
	words []string
}{
	{cmdMenu, []string{"меню", "menu", "главное меню", "main menu"}},
	{cmdProfile, []string{"профіль", "проф", "profile", "профиль"}},
	{cmdSettings, []string{"налаштування", "налаш", "настройки", "settings", "setting", "config"}},
	{cmdLanguage, []string{"мова", "язык", "language", "lang"}},
	{cmdSubscription, []string{"підписка", "подписка", "subscription", "sub"}},
	{cmdHelp, []string{"про бота", "о боте", "help", "about bot", "info", "инфо"}},
	{cmdBack, []string{"назад", "back", "retour", "zurück", "вернуться", "⬅️"}},
}

type command struct {
	name  string
	words []string
}

func buildCommands(cat *locale.Catalog) []command {
	out := make([]command, 0, len(aliases))
	for _, a := range aliases {
		seen := map[string]bool{}
		var words []string
		add := func(w string) {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" && !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
		for _, w := range a.words {
			add(w)
		}
		if cat != nil {
			for _, w := range cat.Variants(a.name) {
				add(w)
			}
		}
		out = append(out, command{name: a.name, words: words})
	}
	return out
}

// matchCommand шукає команду меню за входженням підрядка без урахування регістру.
func (b *Bot) matchCommand(text string) (string, bool) {
	t := strings.ToLower(text)
	for _, c := range b.commands {
		for _, w := range c.words {
			if strings.Contains(t, w) {
				return c.name, true
			}
		}
	}
	return "", false
}

func (b *Bot) mainMenu(lang string) *messenger.Keyboard {
	btn := func(icon, key string) messenger.Button {
		return messenger.Button{Text: icon + " " + b.t(lang, key)}
	}
	return messenger.ReplyKeyboard(
		[]messenger.Button{btn("📋", "menu"), btn("👤", "profile")},
		[]messenger.Button{btn("⚙️", "settings"), btn("🌍", "language")},
		[]messenger.Button{btn("💎", "subscription"), btn("ℹ️", "help")},
	)
}

func (b *Bot) backMenu(lang string) *messenger.Keyboard {
	return messenger.ReplyKeyboard([]messenger.Button{{Text: "⬅️ " + b.t(lang, "back")}})
}

func (b *Bot) languageKeyboard() *messenger.Keyboard {
	rows := make([][]messenger.Button, 0, len(locale.Languages))
	for _, code := range locale.Languages {
		rows = append(rows, []messenger.Button{{Text: locale.Name(code), Data: langPrefix + code}})
	}
	return messenger.InlineKeyboard(rows...)
}

func (b *Bot) onMessage(ctx context.Context, m *messenger.Message) {
	text := strings.TrimSpace(m.Text)
	u := b.user(ctx, m.From)
	lang := u.Language

	if text == "/start" || strings.HasPrefix(text, "/start ") {
		b.send(ctx, m.ChatID, b.t(lang, "welcome"), b.mainMenu(lang))
		return
	}

	if link, ok := yt.FindURL(text); ok {
		b.dispatch(ctx, m.ChatID, u, link)
		return
	}
	if yt.LooksLikeURL(text) {
		b.send(ctx, m.ChatID, b.t(lang, "unsupported"), nil)
		return
	}

	name, ok := b.matchCommand(text)
	if !ok {
		b.send(ctx, m.ChatID, b.t(lang, "not_understood"), b.mainMenu(lang))
		return
	}
	b.log.Debug("Команда меню", zap.Int64("chat_id", m.ChatID), zap.String("command", name))

	switch name {
	case cmdMenu, cmdBack:
		b.send(ctx, m.ChatID, b.t(lang, "enter_url"), b.mainMenu(lang))
	case cmdProfile:
		b.send(ctx, m.ChatID, b.profileText(u), b.backMenu(lang))
	case cmdSettings:
		b.send(ctx, m.ChatID, "⚙️ "+b.t(lang, "settings")+":", b.settingsKeyboard(u))
	case cmdLanguage:
		b.send(ctx, m.ChatID, b.t(lang, "choose_language"), b.languageKeyboard())
	case cmdSubscription:
		b.send(ctx, m.ChatID, b.t(lang, "free_version"), b.backMenu(lang))
	case cmdHelp:
		b.send(ctx, m.ChatID, b.t(lang, "help_text"), b.backMenu(lang))
	}
}

func (b *Bot) yesNo(lang string, v bool) string {
	if v {
		return "✅ " + b.t(lang, "yes")
	}
	return "❌ " + b.t(lang, "no")
}

func (b *Bot) profileText(u *database.User) string {
	lang := u.Language
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s\n\n", b.t(lang, "profile"))
	fmt.Fprintf(&sb, "🆔 ID: %d\n", u.ID)
	fmt.Fprintf(&sb, "👋 %s: %s\n", b.t(lang, "lbl_name"), u.Name)
	fmt.Fprintf(&sb, "💎 %s: %s\n", b.t(lang, "lbl_subscription"), b.t(lang, "subscription_free"))
	fmt.Fprintf(&sb, "🎥 %s: %d\n", b.t(lang, "lbl_downloaded"), u.Downloads)
	fmt.Fprintf(&sb, "🎞️ %s: %s\n", b.t(lang, "lbl_format"), strings.ToUpper(string(u.Format)))
	fmt.Fprintf(&sb, "🎧 %s: %s\n", b.t(lang, "lbl_only_audio"), b.yesNo(lang, !u.Format.IsVideo()))
	fmt.Fprintf(&sb, "📝 %s: %s\n", b.t(lang, "lbl_description"), b.yesNo(lang, u.IncludeDescription))
	fmt.Fprintf(&sb, "🎬 %s: %s\n", b.t(lang, "lbl_video_plus_audio"), b.yesNo(lang, u.VideoPlusAudio))
	fmt.Fprintf(&sb, "📅 %s: %s", b.t(lang, "lbl_since"), u.Joined.Format(database.JoinedLayout))
	return sb.String()
}

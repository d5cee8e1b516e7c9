// Package messenger описує транспорт-незалежний контракт з Telegram:
// вхідні оновлення, клавіатури та шлюз для надсилання.
package messenger

import "context"

type User struct {
	ID           int64
	FirstName    string
	Username     string
	LanguageCode string
}

type Message struct {
	ID     int
	ChatID int64
	From   User
	Text   string
}

type Callback struct {
	ID        string
	ChatID    int64
	MessageID int
	From      User
	Data      string
}

// Update рівно одне з полів не nil.
type Update struct {
	Message  *Message
	Callback *Callback
}

type Button struct {
	Text string
	// Data порожнє для кнопок звичайної клавіатури.
	Data string
}

// Keyboard inline-клавіатура під повідомленням або клавіатура відповіді внизу екрану.
type Keyboard struct {
	Inline bool
	Rows   [][]Button
}

func InlineKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Inline: true, Rows: rows}
}

func ReplyKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

type File struct {
	Path    string
	Caption string
	// Title для аудіо.
	Title string
}

// Gateway вихідні виклики до Telegram.
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) (int, error)
	SendVideo(ctx context.Context, chatID int64, f File) error
	SendAudio(ctx context.Context, chatID int64, f File) error
	SendPhoto(ctx context.Context, chatID int64, f File) error
	SendDocument(ctx context.Context, chatID int64, f File) error
	// SendPhotoGroup одне повідомлення-альбом, не більше MaxGroupSize файлів.
	SendPhotoGroup(ctx context.Context, chatID int64, files []File) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	EditKeyboard(ctx context.Context, chatID int64, messageID int, kb *Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Handler обробляє одне вхідне оновлення. Має повертатись швидко.
type Handler func(ctx context.Context, u Update)

// MaxGroupSize ліміт Telegram на кількість елементів в альбомі.
const MaxGroupSize = 10

// MaxCaption ліміт довжини підпису до медіа в символах.
const MaxCaption = 1024

package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"github.com/lysyi3m/feed-digest/app/feed"
)

// telegramLimit is the maximum length of a Telegram text message.
const telegramLimit = 4096

type TelegramOptions struct {
	Token    string
	ChatID   string
	APIURL   string
	Title    string
	MaxItems int
	Client   *http.Client
}

// Telegram sends the digest as one HTML message through the Bot API.
type Telegram struct {
	bot   *tele.Bot
	chat  tele.ChatID
	title string
	limit int
	log   zerolog.Logger
}

func NewTelegram(opts TelegramOptions, log zerolog.Logger) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(opts.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", opts.ChatID, err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	// Offline skips the getMe round trip; the bot only sends.
	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		URL:     opts.APIURL,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	limit := opts.MaxItems
	if limit <= 0 {
		limit = DefaultMaxItems
	}

	return &Telegram{
		bot:   bot,
		chat:  tele.ChatID(chatID),
		title: opts.Title,
		limit: limit,
		log:   log.With().Str("component", "telegram").Logger(),
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Notify(ctx context.Context, items []feed.Item) error {
	text := RenderHTML(items, t.title, t.limit)

	msg, err := t.bot.Send(t.chat, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return &DeliveryError{Sink: t.Name(), Err: err}
	}

	t.log.Info().Int("message_id", msg.ID).Msg("Digest delivered")
	return nil
}

// RenderHTML formats at most limit items as a Telegram HTML message. Items that
// would push the message past the Telegram length limit are left out.
func RenderHTML(items []feed.Item, title string, limit int) string {
	if title == "" {
		title = DefaultTitle
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(title))

	for _, item := range items {
		entry := renderHTMLItem(item)
		if b.Len()+len(entry) > telegramLimit {
			break
		}
		b.WriteString(entry)
	}

	return b.String()
}

func renderHTMLItem(item feed.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n<b>%s</b> · <a href=\"%s\">%s</a>",
		html.EscapeString(item.Source),
		html.EscapeString(item.URL),
		html.EscapeString(item.Title))
	if item.Summary != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(item.Summary))
	}
	return b.String()
}

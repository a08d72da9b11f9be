package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/feed"
)

// DefaultMaxItems is the number of items rendered into one message.
const DefaultMaxItems = 10

// Notifier renders items and delivers them to one destination.
type Notifier interface {
	Notify(ctx context.Context, items []feed.Item) error
	Name() string
}

// DeliveryError reports a delivery that did not succeed. StatusCode is the
// HTTP status when one was received; Code and Message carry the
// application-level status from the response body.
type DeliveryError struct {
	Sink       string
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("deliver to %s: %v", e.Sink, e.Err)
	case e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299):
		return fmt.Sprintf("deliver to %s: unexpected status code %d: %s", e.Sink, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("deliver to %s: code %d: %s", e.Sink, e.Code, e.Message)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Multi delivers to every notifier in turn. A failing notifier does not stop
// the others; all errors are joined.
type Multi []Notifier

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Notify(ctx context.Context, items []feed.Item) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Options struct {
	Feishu   FeishuOptions
	Telegram TelegramOptions
	MaxItems int
	// Console receives the digest when no other destination is configured.
	Console io.Writer
}

// Build returns the notifiers selected by opts. Without a webhook or bot
// configured, the digest goes to the console.
func Build(opts Options, log zerolog.Logger) (Notifier, error) {
	var notifiers Multi

	if opts.Feishu.Webhook != "" {
		f := opts.Feishu
		if f.MaxItems == 0 {
			f.MaxItems = opts.MaxItems
		}
		notifiers = append(notifiers, NewFeishu(f, log))
	}

	if opts.Telegram.Token != "" || opts.Telegram.ChatID != "" {
		t := opts.Telegram
		if t.MaxItems == 0 {
			t.MaxItems = opts.MaxItems
		}
		tg, err := NewTelegram(t, log)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}

	switch len(notifiers) {
	case 0:
		return NewConsole(opts.Console, log), nil
	case 1:
		return notifiers[0], nil
	default:
		return notifiers, nil
	}
}

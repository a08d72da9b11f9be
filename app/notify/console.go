package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/feed"
)

// Console prints one line per item. It is the fallback when no delivery
// endpoint is configured.
type Console struct {
	out io.Writer
	log zerolog.Logger
}

func NewConsole(out io.Writer, log zerolog.Logger) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		out: out,
		log: log.With().Str("component", "console").Logger(),
	}
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) Notify(ctx context.Context, items []feed.Item) error {
	w := bufio.NewWriter(c.out)
	for _, item := range items {
		fmt.Fprintln(w, RenderLine(item))
	}
	if err := w.Flush(); err != nil {
		return &DeliveryError{Sink: c.Name(), Err: err}
	}

	c.log.Debug().Int("items", len(items)).Msg("Printed digest")
	return nil
}

// RenderLine formats an item as "[source] title -> url".
func RenderLine(item feed.Item) string {
	return fmt.Sprintf("[%s] %s -> %s", item.Source, item.Title, item.URL)
}

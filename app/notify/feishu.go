package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/feed"
)

// DefaultTitle heads the digest when no title is configured.
const DefaultTitle = "Feed Digest"

// Card is a Feishu interactive message.
type Card struct {
	Timestamp string   `json:"timestamp,omitempty"`
	Sign      string   `json:"sign,omitempty"`
	MsgType   string   `json:"msg_type"`
	Card      CardBody `json:"card"`
}

type CardBody struct {
	Header   CardHeader    `json:"header"`
	Elements []CardElement `json:"elements"`
}

type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template"`
}

type CardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type CardElement struct {
	Tag  string    `json:"tag"`
	Text *CardText `json:"text,omitempty"`
}

// RenderCard builds the card for at most limit items in the given order.
// Extra items are dropped without notice.
func RenderCard(items []feed.Item, title string, limit int) Card {
	if title == "" {
		title = DefaultTitle
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	elements := make([]CardElement, 0, 2*len(items))
	for i, item := range items {
		if i > 0 {
			elements = append(elements, CardElement{Tag: "hr"})
		}
		elements = append(elements, CardElement{
			Tag:  "div",
			Text: &CardText{Tag: "lark_md", Content: itemMarkdown(item)},
		})
	}

	return Card{
		MsgType: "interactive",
		Card: CardBody{
			Header: CardHeader{
				Title:    CardText{Tag: "plain_text", Content: title},
				Template: "turquoise",
			},
			Elements: elements,
		},
	}
}

func itemMarkdown(item feed.Item) string {
	parts := []string{fmt.Sprintf("**%s** · [%s](%s)", item.Source, item.Title, item.URL)}
	if item.Thumbnail != "" {
		parts = append(parts, fmt.Sprintf("![thumbnail](%s)", item.Thumbnail))
	}
	if item.Summary != "" {
		parts = append(parts, item.Summary)
	}
	return strings.Join(parts, "\n")
}

// Sign computes the signature of a Feishu custom bot with signing enabled.
func Sign(timestamp int64, secret string) string {
	key := strconv.FormatInt(timestamp, 10) + "\n" + secret
	mac := hmac.New(sha256.New, []byte(key))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type FeishuOptions struct {
	Webhook  string
	Secret   string
	Title    string
	MaxItems int
	Client   *http.Client
}

// Feishu posts a card to a Feishu custom bot webhook.
type Feishu struct {
	opts   FeishuOptions
	client *http.Client
	now    func() time.Time
	log    zerolog.Logger
}

type feishuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewFeishu(opts FeishuOptions, log zerolog.Logger) *Feishu {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	return &Feishu{
		opts:   opts,
		client: client,
		now:    time.Now,
		log:    log.With().Str("component", "feishu").Logger(),
	}
}

func (f *Feishu) Name() string {
	return "feishu"
}

// Notify delivers the card. It succeeds only on a 2xx response whose body
// carries code 0.
func (f *Feishu) Notify(ctx context.Context, items []feed.Item) error {
	card := RenderCard(items, f.opts.Title, f.opts.MaxItems)
	if f.opts.Secret != "" {
		ts := f.now().Unix()
		card.Timestamp = strconv.FormatInt(ts, 10)
		card.Sign = Sign(ts, f.opts.Secret)
	}

	body, err := json.Marshal(card)
	if err != nil {
		return &DeliveryError{Sink: f.Name(), Err: fmt.Errorf("failed to encode card: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.opts.Webhook, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Sink: f.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := f.client.Do(req)
	if err != nil {
		return &DeliveryError{Sink: f.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &DeliveryError{Sink: f.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Sink: f.Name(), StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var result feishuResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return &DeliveryError{Sink: f.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.Code != 0 {
		return &DeliveryError{Sink: f.Name(), StatusCode: resp.StatusCode, Code: result.Code, Message: result.Msg}
	}

	f.log.Info().Int("items", min(len(items), f.opts.MaxItems)).Msg("Digest delivered")
	return nil
}

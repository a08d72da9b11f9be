package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	summaryLimit = 240

	// timePrecision matches the resolution of persisted watermarks.
	timePrecision = time.Microsecond
)

type Parser struct {
	gofeedParser *gofeed.Parser
	now          func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run parses an RSS or Atom document and stamps every item with the given
// source key. Entries without a publication date are stamped with the
// current time.
func (p *Parser) Run(data []byte, source string) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item, source))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, source string) Item {
	normalized := Item{
		Title:  item.Title,
		URL:    cmp.Or(item.Link, item.GUID),
		Source: source,
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = *item.UpdatedParsed
	} else {
		normalized.PublishedAt = p.now()
	}
	normalized.PublishedAt = normalized.PublishedAt.Truncate(timePrecision)

	normalized.Thumbnail = p.extractThumbnail(item)

	summary := cmp.Or(item.Description, mediaValue(item.Extensions, "description"))
	normalized.Summary = Truncate(PlainText(summary), summaryLimit)

	return normalized
}

func (p *Parser) extractThumbnail(item *gofeed.Item) string {
	if url := mediaAttr(item.Extensions, "thumbnail", "url"); url != "" {
		return url
	}
	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}

// mediaNode finds a Media RSS element either directly under the item or
// nested in media:group, which is where YouTube puts it.
func mediaNode(extensions ext.Extensions, name string) *ext.Extension {
	media, ok := extensions["media"]
	if !ok {
		return nil
	}

	if nodes := media[name]; len(nodes) > 0 {
		return &nodes[0]
	}

	for _, group := range media["group"] {
		if nodes := group.Children[name]; len(nodes) > 0 {
			return &nodes[0]
		}
	}

	return nil
}

func mediaAttr(extensions ext.Extensions, name, attr string) string {
	if node := mediaNode(extensions, name); node != nil {
		return node.Attrs[attr]
	}
	return ""
}

func mediaValue(extensions ext.Extensions, name string) string {
	if node := mediaNode(extensions, name); node != nil {
		return node.Value
	}
	return ""
}

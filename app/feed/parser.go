package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"
)

// Parser normalizes RSS, Atom and JSON Feed documents into Document values.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	gofeedParser := gofeed.NewParser()
	gofeedParser.RSSTranslator = &rssTranslator{
		DefaultRSSTranslator: &gofeed.DefaultRSSTranslator{},
	}
	return &Parser{
		gofeedParser: gofeedParser,
	}
}

// rssTranslator augments the default RSS translation: gofeed drops the
// per-item <comments> element, so it is copied into Item.Custom here. The
// default translator emits one output item per input item in order.
type rssTranslator struct {
	*gofeed.DefaultRSSTranslator
}

func (t *rssTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	rssFeed, ok := feed.(*rss.Feed)
	if !ok {
		return nil, fmt.Errorf("feed is not an RSS feed")
	}

	translated, err := t.DefaultRSSTranslator.Translate(rssFeed)
	if err != nil {
		return nil, err
	}

	for i, item := range rssFeed.Items {
		if i >= len(translated.Items) || item.Comments == "" {
			continue
		}
		out := translated.Items[i]
		if out.Custom == nil {
			out.Custom = map[string]string{}
		}
		out.Custom["comments"] = item.Comments
	}
	return translated, nil
}

func (p *Parser) Run(data []byte) (*Document, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	doc := &Document{
		Metadata: Metadata{
			GUID:        parsed.FeedLink,
			Title:       parsed.Title,
			Subtitle:    parsed.Description,
			Link:        parsed.Link,
			Description: parsed.Description,
			Language:    parsed.Language,
			Copyright:   parsed.Copyright,
		},
	}
	if parsed.Image != nil {
		doc.Metadata.IconURL = parsed.Image.URL
	}

	doc.Items = make([]Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		doc.Items = append(doc.Items, p.normalizeItem(item))
	}
	return doc, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		Title:   item.Title,
		Link:    item.Link,
		Content: item.Content,
	}

	if normalized.Content == "" {
		normalized.Content = item.Description
	}
	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed
	}
	if item.Image != nil {
		normalized.Thumbnail = item.Image.URL
	}
	if item.Categories != nil {
		normalized.Categories = item.Categories
	}
	if raw, ok := item.Custom["comments"]; ok {
		normalized.CommentsURL = raw
	}

	normalized.Author = extractAuthor(item)

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		e := Enclosure{URL: enclosure.URL, MimeType: enclosure.Type}
		if enclosure.Length != "" {
			if size, err := strconv.ParseInt(enclosure.Length, 10, 64); err == nil {
				e.Size = size
			}
		}
		normalized.Enclosures = append(normalized.Enclosures, e)
	}

	normalized.GUID = deriveGUID(item.GUID, normalized)
	return normalized
}

// deriveGUID keeps deduplication stable for feeds without explicit guids:
// the same (link, title, content) triple always derives the same guid. Only
// a fully empty item falls back to a random UUID.
func deriveGUID(explicit string, item Item) string {
	if explicit != "" {
		return explicit
	}
	for _, basis := range []string{item.Link, item.Title, item.Content} {
		if basis != "" {
			sum := sha256.Sum256([]byte(basis))
			return hex.EncodeToString(sum[:])
		}
	}
	return uuid.NewString()
}

func extractAuthor(item *gofeed.Item) string {
	var names []string
	appendAuthor := func(name, email string) {
		name = strings.TrimSpace(name)
		email = strings.TrimSpace(email)
		switch {
		case name != "" && email != "":
			names = append(names, fmt.Sprintf("%s (%s)", name, email))
		case name != "":
			names = append(names, name)
		case email != "":
			names = append(names, email)
		}
	}

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				appendAuthor(author.Name, author.Email)
			}
		}
	} else if item.Author != nil {
		appendAuthor(item.Author.Name, item.Author.Email)
	}

	return strings.Join(names, ", ")
}

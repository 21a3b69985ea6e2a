package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// OPMLEntry is one subscription flattened out of an OPML document, with the
// folder titles leading to it.
type OPMLEntry struct {
	Title           string
	URL             string
	FolderHierarchy []string
}

type opmlDocument struct {
	XMLName xml.Name    `xml:"opml"`
	Version string      `xml:"version,attr"`
	Head    opmlHead    `xml:"head"`
	Body    opmlBody    `xml:"body"`
}

type opmlHead struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr,omitempty"`
	Type     string        `xml:"type,attr,omitempty"`
	XMLURL   string        `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string        `xml:"htmlUrl,attr,omitempty"`
	Outlines []opmlOutline `xml:"outline,omitempty"`
}

// ParseOPML flattens an OPML document into an ordered entry list. Pure
// function, no I/O.
func ParseOPML(opml string) ([]OPMLEntry, error) {
	var doc opmlDocument
	if err := xml.NewDecoder(strings.NewReader(opml)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode opml: %w", err)
	}

	var entries []OPMLEntry
	var walk func(outlines []opmlOutline, path []string)
	walk = func(outlines []opmlOutline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, OPMLEntry{
					Title:           title,
					URL:             o.XMLURL,
					FolderHierarchy: append([]string{}, path...),
				})
				continue
			}
			if len(o.Outlines) > 0 {
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path, name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// OPMLOutline is a node of the export tree: either a folder (children set)
// or a feed (URL set).
type OPMLOutline struct {
	Title    string
	URL      string
	SiteLink string
	Children []OPMLOutline
}

// ExportOPML renders an OPML 2.0 document from a prebuilt outline tree.
func ExportOPML(title string, outlines []OPMLOutline) (string, error) {
	doc := opmlDocument{
		Version: "2.0",
		Head: opmlHead{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
		Body: opmlBody{Outlines: exportOutlines(outlines)},
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal opml: %w", err)
	}
	return xml.Header + string(output), nil
}

func exportOutlines(nodes []OPMLOutline) []opmlOutline {
	out := make([]opmlOutline, 0, len(nodes))
	for _, node := range nodes {
		o := opmlOutline{
			Text:  node.Title,
			Title: node.Title,
		}
		if node.URL != "" {
			o.Type = "rss"
			o.XMLURL = node.URL
			o.HTMLURL = node.SiteLink
		} else {
			o.Outlines = exportOutlines(node.Children)
		}
		out = append(out, o)
	}
	return out
}

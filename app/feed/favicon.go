package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DiscoverIconURL finds a site icon for the page at baseURL using a fixed
// fallback chain: an explicit <link rel="icon"> in the document, then an
// avatar URL embedded in an inline JSON blob, then /favicon.ico on the host.
func DiscoverIconURL(page []byte, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	if href := iconLinkHref(page); href != "" {
		if resolved := resolveRef(base, href); resolved != "" {
			return resolved
		}
	}

	if avatar := embeddedAvatarURL(page); avatar != "" {
		if resolved := resolveRef(base, avatar); resolved != "" {
			return resolved
		}
	}

	return fmt.Sprintf("%s://%s/favicon.ico", base.Scheme, base.Host)
}

// FetchIconURL fetches pageURL and runs icon discovery over the response.
func FetchIconURL(ctx context.Context, httpClient *http.Client, userAgent, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return DiscoverIconURL(page, pageURL), nil
}

func iconLinkHref(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, href string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "rel":
					rel = strings.ToLower(attr.Val)
				case "href":
					href = attr.Val
				}
			}
			if href != "" && strings.Contains(rel, "icon") {
				found = href
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// embeddedAvatarURL scans inline JSON for an "avatar" field, the pattern
// several platforms use instead of a link element.
func embeddedAvatarURL(page []byte) string {
	const marker = `"avatar":"`
	idx := bytes.Index(page, []byte(marker))
	if idx < 0 {
		return ""
	}
	rest := page[idx+len(marker):]
	end := bytes.IndexByte(rest, '"')
	if end <= 0 {
		return ""
	}
	avatar := string(rest[:end])
	// Inline JSON escapes slashes.
	return strings.ReplaceAll(avatar, `\/`, `/`)
}

func resolveRef(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

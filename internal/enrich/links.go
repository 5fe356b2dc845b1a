package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	maxBodyBytes    = 512 * 1024 // enough for any article body worth reading
	maxPreviewRunes = 1200
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractLinks returns up to max URLs found in the text, in order of
// appearance, deduplicated.
func ExtractLinks(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == max {
			break
		}
	}
	return out
}

// LinkFetcher fetches pages and reduces them to prompt-sized previews.
type LinkFetcher struct {
	client *http.Client
}

// NewLinkFetcher creates a fetcher with a bounded client. The per-link
// deadline is carried by the caller's context; the client timeout is only a
// backstop.
func NewLinkFetcher() *LinkFetcher {
	return &LinkFetcher{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Preview fetches one URL and returns "title - readable text" truncated to
// a prompt-friendly size.
func (f *LinkFetcher) Preview(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("bad link url: %w", err)
	}
	req.Header.Set("User-Agent", "Nova/1.0 (+link-understanding)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("link fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("link fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("link body read failed: %w", err)
	}

	title, text := Reduce(string(body))
	if title == "" && text == "" {
		return "", fmt.Errorf("no readable content at %s", url)
	}
	if title != "" {
		return title + " - " + text, nil
	}
	return text, nil
}

// Reduce parses HTML and returns the page title and the visible text,
// scripts and styles stripped, truncated to maxPreviewRunes.
func Reduce(rawHTML string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "svg", "iframe":
				return
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		case html.TextNode:
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	runes := []rune(b.String())
	if len(runes) > maxPreviewRunes {
		runes = runes[:maxPreviewRunes]
	}
	return title, strings.TrimSpace(string(runes))
}

package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// page is one crawled documentation page before splitting.
type page struct {
	URL         string
	Title       string
	Description string
	Content     string
}

// blankRuns matches two or more consecutive newlines, so paragraph breaks
// normalize to exactly one blank line.
var blankRuns = regexp.MustCompile(`\n{2,}`)

// skipElements never contribute text.
var skipElements = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
}

// blockElements end a line of extracted text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "figure": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// extractPage pulls the title, meta description, and readable text out of
// one fetched page. Readability extraction runs first; pages it cannot
// handle fall back to a plain text walk scoped to the page's main content
// landmark. A page whose body yields nothing keeps its description as
// content so it still turns up in search.
func extractPage(body []byte, pageURL *url.URL) (page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return page{}, fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	p := page{
		URL:         pageURL.String(),
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
	}

	p.Content = readableText(body, pageURL)
	if p.Content == "" {
		p.Content = walkText(doc)
	}
	if p.Content == "" {
		p.Content = p.Description
	}
	return p, nil
}

// readableText runs readability's article extraction. It returns "" for
// pages readability rejects, which the caller treats as a fallback signal
// rather than an error.
func readableText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}
	return collapseBlankRuns(article.TextContent)
}

// walkText extracts plain text from the page's main content landmark, or
// the whole document when no landmark exists.
func walkText(doc *goquery.Document) string {
	root := doc.Get(0)
	if sel := doc.Find("article, main, [role=main]").First(); sel.Length() > 0 {
		root = sel.Get(0)
	}
	return textFromNode(root)
}

// textFromNode walks the node tree collecting text, ending a line at each
// block element so paragraphs stay separated.
func textFromNode(root *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(root)
	return collapseBlankRuns(sb.String())
}

func collapseBlankRuns(text string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

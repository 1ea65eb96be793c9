package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"
)

// maxSitemapDepth bounds recursion through nested sitemap indexes.
const maxSitemapDepth = 3

// sitemapDoc covers both document kinds a sitemap endpoint can serve: a
// urlset of pages or a sitemapindex of nested sitemaps. Field tags match
// local element names, so the sitemap namespace declaration is irrelevant.
type sitemapDoc struct {
	Pages    []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// discoverPages fetches a sitemap and returns every page URL it lists,
// following nested sitemap indexes.
func (p *Pipeline) discoverPages(ctx context.Context, sitemapURL string) ([]string, error) {
	pages, err := p.discover(ctx, sitemapURL, maxSitemapDepth)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("sitemap %s lists no pages", sitemapURL)
	}
	return pages, nil
}

func (p *Pipeline) discover(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth == 0 {
		return nil, fmt.Errorf("sitemap nesting too deep at %s", sitemapURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := p.fetch(sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	var pages []string
	for _, u := range doc.Pages {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			pages = append(pages, loc)
		}
	}
	for _, sm := range doc.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		nested, err := p.discover(ctx, loc, depth-1)
		if err != nil {
			return nil, err
		}
		pages = append(pages, nested...)
	}
	return pages, nil
}

// fetch performs one GET through a throwaway collector so every request
// the pipeline makes shares the same user agent and timeout.
func (p *Pipeline) fetch(rawURL string) ([]byte, error) {
	c := colly.NewCollector(colly.UserAgent(p.userAgent))
	c.SetRequestTimeout(p.timeout)

	var body []byte
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return body, nil
}

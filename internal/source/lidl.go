package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/storemap/internal/address"
	"github.com/sells-group/storemap/internal/crawl"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

// DefaultLidlBaseURL is the Lidl Germany site root.
const DefaultLidlBaseURL = "https://www.lidl.de"

// Lidl reads the city list from the store finder overview, then collects the
// Bing map links on every city page and parses the address out of each link.
type Lidl struct {
	base string
}

// NewLidl creates the source; an empty base uses the public site.
func NewLidl(base string) *Lidl {
	if base == "" {
		base = DefaultLidlBaseURL
	}
	return &Lidl{base: strings.TrimRight(base, "/")}
}

// Name implements Source.
func (s *Lidl) Name() string { return model.SourceLidl }

// Chain implements Source.
func (s *Lidl) Chain() model.Chain { return model.ChainLidl }

// Collect implements Source.
func (s *Lidl) Collect(ctx context.Context, env Env) (*Result, error) {
	if env.Queue == nil {
		return nil, eris.New("lidl: no crawl queue")
	}
	overviewURL := s.base + "/f/"
	raw, err := env.Queue.Fetch(ctx, overviewURL)
	if err != nil {
		return nil, eris.Wrap(err, "lidl: fetch overview")
	}
	cities, err := cityURLs(s.base, raw)
	if err != nil {
		return nil, err
	}

	rep, err := crawl.Run(ctx, env.Queue, s.Name(), cities, mapLinks)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Failed:    rep.Failed,
		Documents: []Document{{Name: "overview.html", ContentType: "text/html", Body: raw}},
	}
	seen := make(map[string]bool)
	for _, links := range rep.Items {
		for _, l := range links {
			if !seen[l] {
				seen[l] = true
				res.Links = append(res.Links, l)
			}
		}
	}

	for _, r := range address.ParseMapLinks(res.Links) {
		if r.Err != nil {
			res.Failed = append(res.Failed, resilience.NewDLQEntry(s.Name(), r.Input, 1, r.Err))
			continue
		}
		res.Locations = append(res.Locations, model.Location{
			Source:  s.Name(),
			Chain:   model.ChainLidl,
			URL:     r.Input,
			Address: r.Address,
		})
	}
	return res, nil
}

// cityURLs returns the absolute, de-duplicated city page URLs of the overview.
func cityURLs(base string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "lidl: parse overview")
	}
	baseURL, err := url.Parse(base + "/")
	if err != nil {
		return nil, eris.Wrapf(err, "lidl: parse base url %q", base)
	}

	var urls []string
	seen := make(map[string]bool)
	doc.Find(".ret-o-store-detail-city").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		u := baseURL.ResolveReference(ref).String()
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	})
	if len(urls) == 0 {
		return nil, eris.New("lidl: no city links on overview page")
	}
	return urls, nil
}

// mapLinks returns the Bing map links of one city page in document order.
func mapLinks(pageURL string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "lidl: parse %s", pageURL)
	}
	var links []string
	doc.Find(`a[href*="mapspreview"], a[href*="pos."]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			links = append(links, strings.TrimSpace(href))
		}
	})
	return links, nil
}

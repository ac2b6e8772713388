package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/storemap/internal/crawl"
	"github.com/sells-group/storemap/internal/fetcher"
	"github.com/sells-group/storemap/internal/linkdedup"
	"github.com/sells-group/storemap/internal/model"
)

// DefaultAldiSuedSitemap lists every Aldi Süd store and store-group page.
const DefaultAldiSuedSitemap = "https://filialen.aldi-sued.de/sitemap.xml"

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// AldiSued walks the store sitemap and scrapes each store page. Group pages
// are URL prefixes of the store pages below them and are dropped first.
type AldiSued struct {
	sitemap string
}

// NewAldiSued creates the source; an empty sitemap uses the public one.
func NewAldiSued(sitemap string) *AldiSued {
	if sitemap == "" {
		sitemap = DefaultAldiSuedSitemap
	}
	return &AldiSued{sitemap: sitemap}
}

// Name implements Source.
func (s *AldiSued) Name() string { return model.SourceAldiSued }

// Chain implements Source.
func (s *AldiSued) Chain() model.Chain { return model.ChainAldi }

// Collect implements Source.
func (s *AldiSued) Collect(ctx context.Context, env Env) (*Result, error) {
	if env.Queue == nil {
		return nil, eris.New("aldi_sued: no crawl queue")
	}
	raw, err := env.Queue.Fetch(ctx, s.sitemap)
	if err != nil {
		return nil, eris.Wrap(err, "aldi_sued: fetch sitemap")
	}
	all, err := sitemapURLs(ctx, raw)
	if err != nil {
		return nil, err
	}
	stores := linkdedup.DropPrefixes(all)

	rep, err := crawl.Run(ctx, env.Queue, s.Name(), stores, parseAldiSuedPage)
	if err != nil {
		return nil, err
	}
	return &Result{
		Locations: rep.Items,
		Links:     stores,
		Failed:    rep.Failed,
		Documents: []Document{{Name: "sitemap.xml", ContentType: "application/xml", Body: raw}},
	}, nil
}

// sitemapURLs returns the non-empty <loc> values in document order.
func sitemapURLs(ctx context.Context, raw []byte) ([]string, error) {
	locs, errs := fetcher.StreamXML[string](ctx, bytes.NewReader(raw),
		xml.Name{Space: sitemapNamespace, Local: "loc"})

	var urls []string
	for loc := range locs {
		if loc = strings.TrimSpace(loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "aldi_sued: read sitemap")
	}
	return urls, nil
}

func parseAldiSuedPage(pageURL string, body []byte) (model.Location, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.Location{}, eris.Wrapf(err, "aldi_sued: parse %s", pageURL)
	}

	text := func(class string) (string, error) {
		v := strings.TrimSpace(doc.Find("." + class).First().Text())
		if v == "" {
			return "", &MissingFieldError{URL: pageURL, Field: class}
		}
		return v, nil
	}
	street, err := text("Address-line1")
	if err != nil {
		return model.Location{}, err
	}
	postal, err := text("Address-postalCode")
	if err != nil {
		return model.Location{}, err
	}
	city, err := text("Address-city")
	if err != nil {
		return model.Location{}, err
	}

	content, ok := doc.Find(`meta[name="geo.position"]`).First().Attr("content")
	if !ok {
		return model.Location{}, &MissingFieldError{URL: pageURL, Field: "geo.position"}
	}
	lat, lon, err := geoPosition(content)
	if err != nil {
		return model.Location{}, eris.Wrapf(err, "aldi_sued: %s", pageURL)
	}

	return model.Location{
		Source: model.SourceAldiSued,
		Chain:  model.ChainAldi,
		URL:    pageURL,
		Address: model.GeoAddress{
			Street:     street,
			PostalCode: postal,
			City:       city,
			Latitude:   lat,
			Longitude:  lon,
		},
	}, nil
}

// geoPosition parses a "lat;lon" meta value.
func geoPosition(content string) (lat, lon float64, err error) {
	latStr, lonStr, ok := strings.Cut(content, ";")
	if !ok {
		return 0, 0, eris.Errorf("geo.position %q is not lat;lon", content)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64); err != nil {
		return 0, 0, eris.Wrapf(err, "geo.position latitude %q", latStr)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64); err != nil {
		return 0, 0, eris.Wrapf(err, "geo.position longitude %q", lonStr)
	}
	if !(model.Coordinate{Lat: lat, Lon: lon}).Valid() {
		return 0, 0, eris.Errorf("geo.position %q out of range", content)
	}
	return lat, lon, nil
}

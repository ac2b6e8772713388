package source

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/fetcher"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

// AldiNord reads the store list from a dump of the store finder's locations
// API. Only stores with country "DE" are kept.
type AldiNord struct {
	dump string // URL or local path
}

// NewAldiNord creates the source. dump is an http(s) URL or a file path.
func NewAldiNord(dump string) *AldiNord {
	return &AldiNord{dump: dump}
}

// Name implements Source.
func (s *AldiNord) Name() string { return model.SourceAldiNord }

// Chain implements Source.
func (s *AldiNord) Chain() model.Chain { return model.ChainAldi }

type nordDump struct {
	Response struct {
		Locations []nordLocation `json:"locations"`
	} `json:"response"`
}

type nordLocation struct {
	ID              json.RawMessage `json:"id"`
	StreetAndNumber string          `json:"streetAndNumber"`
	Zip             string          `json:"zip"`
	City            string          `json:"city"`
	Country         string          `json:"country"`
	Lat             *float64        `json:"lat"`
	Lng             *float64        `json:"lng"`
}

// Collect implements Source.
func (s *AldiNord) Collect(ctx context.Context, env Env) (*Result, error) {
	if s.dump == "" {
		return nil, eris.New("aldi_nord: no dump configured")
	}
	raw, err := s.read(ctx, env)
	if err != nil {
		return nil, err
	}
	res, err := parseNordDump(s.dump, raw)
	if err != nil {
		return nil, err
	}
	res.Documents = []Document{{Name: "locations.json", ContentType: "application/json", Body: raw}}
	return res, nil
}

func (s *AldiNord) read(ctx context.Context, env Env) ([]byte, error) {
	if strings.HasPrefix(s.dump, "http://") || strings.HasPrefix(s.dump, "https://") {
		if env.Queue == nil {
			return nil, eris.New("aldi_nord: no crawl queue")
		}
		return env.Queue.Fetch(ctx, s.dump)
	}
	raw, err := os.ReadFile(s.dump)
	return raw, eris.Wrapf(err, "aldi_nord: read dump %s", s.dump)
}

func parseNordDump(origin string, raw []byte) (*Result, error) {
	dump, err := fetcher.DecodeJSONObject[nordDump](bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "aldi_nord: decode dump")
	}

	res := &Result{}
	skipped := 0
	for _, l := range dump.Response.Locations {
		if l.Country != "DE" {
			skipped++
			continue
		}
		ref := origin + "#" + strings.Trim(string(l.ID), `"`)
		if l.Lat == nil || l.Lng == nil {
			field := "lat"
			if l.Lat != nil {
				field = "lng"
			}
			res.Failed = append(res.Failed, resilience.NewDLQEntry(model.SourceAldiNord, ref, 1,
				&MissingFieldError{URL: ref, Field: field}))
			continue
		}
		res.Locations = append(res.Locations, model.Location{
			Source: model.SourceAldiNord,
			Chain:  model.ChainAldi,
			URL:    ref,
			Address: model.GeoAddress{
				Street:     strings.TrimSpace(l.StreetAndNumber),
				PostalCode: strings.TrimSpace(l.Zip),
				City:       strings.TrimSpace(l.City),
				Latitude:   *l.Lat,
				Longitude:  *l.Lng,
			},
		})
	}

	zap.L().Debug("aldi_nord: dump parsed",
		zap.Int("locations", len(res.Locations)),
		zap.Int("foreign", skipped),
		zap.Int("incomplete", len(res.Failed)),
	)
	return res, nil
}

package table

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/fetcher"
	"github.com/sells-group/storemap/internal/model"
)

// CoordOptions names the coordinate columns. Defaults are "Latitude" and
// "Longitude"; matching ignores case.
type CoordOptions struct {
	LatColumn string
	LonColumn string
	Sheet     string // XLSX only; default first sheet
}

func (o CoordOptions) withDefaults() CoordOptions {
	if o.LatColumn == "" {
		o.LatColumn = "Latitude"
	}
	if o.LonColumn == "" {
		o.LonColumn = "Longitude"
	}
	return o
}

// LoadCoordinates reads the coordinate columns of a CSV, XLSX or JSON table.
// JSON input is an array of {"lat": .., "lon": ..} objects. Rows keep file
// order; a row with an unparsable or out-of-range coordinate is an error.
func LoadCoordinates(ctx context.Context, path string, opts CoordOptions) ([]model.Coordinate, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet, HasHeader: true})
		if err != nil {
			return nil, err
		}
		return coordinatesFromRows(path, header, rows, opts)
	case ".json":
		return loadJSONCoordinates(ctx, path)
	default:
		return loadCSVCoordinates(ctx, path, opts)
	}
}

// LoadCoordinateSets loads and concatenates several tables in order.
func LoadCoordinateSets(ctx context.Context, paths []string, opts CoordOptions) ([]model.Coordinate, error) {
	var out []model.Coordinate
	for _, p := range paths {
		cs, err := LoadCoordinates(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("table: loaded coordinates", zap.String("path", p), zap.Int("count", len(cs)))
		out = append(out, cs...)
	}
	return out, nil
}

func loadCSVCoordinates(ctx context.Context, path string, opts CoordOptions) ([]model.Coordinate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	// Stops the reader goroutine on an early return.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true})

	var header []string
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	select {
	case header = <-headerCh:
	default:
	}
	return coordinatesFromRows(path, header, rows, opts)
}

func loadJSONCoordinates(ctx context.Context, path string) ([]model.Coordinate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	// Stops the reader goroutine on an early return.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	itemCh, errCh := fetcher.DecodeJSONArray[model.Coordinate](ctx, f)
	var out []model.Coordinate
	for c := range itemCh {
		if !c.Valid() {
			return nil, eris.Errorf("table: %s element %d: coordinate (%v, %v) out of range", path, len(out), c.Lat, c.Lon)
		}
		out = append(out, c)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	return out, nil
}

func coordinatesFromRows(path string, header []string, rows [][]string, opts CoordOptions) ([]model.Coordinate, error) {
	latIdx, lonIdx := column(header, opts.LatColumn), column(header, opts.LonColumn)
	if latIdx < 0 || lonIdx < 0 {
		return nil, eris.Errorf("table: %s needs %q and %q columns, have %v", path, opts.LatColumn, opts.LonColumn, header)
	}

	out := make([]model.Coordinate, 0, len(rows))
	for i, row := range rows {
		line := i + 2 // 1-based, after the header
		if max(latIdx, lonIdx) >= len(row) {
			return nil, eris.Errorf("table: %s row %d has %d fields", path, line, len(row))
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[latIdx]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "table: %s row %d latitude", path, line)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[lonIdx]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "table: %s row %d longitude", path, line)
		}
		c := model.Coordinate{Lat: lat, Lon: lon}
		if !c.Valid() {
			return nil, eris.Errorf("table: %s row %d: coordinate (%v, %v) out of range", path, line, lat, lon)
		}
		out = append(out, c)
	}
	return out, nil
}

func column(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
			return i
		}
	}
	return -1
}

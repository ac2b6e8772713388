// Package fetcher downloads store-finder pages and decodes the CSV, XML,
// JSON and XLSX documents that collectors and coordinate tables read.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // 0 = none
	// HasHeader skips the first row. When HeaderCh is set the row is sent
	// there before any data row is emitted.
	HasHeader  bool
	HeaderCh   chan<- []string
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads r row by row. Rows may have varying field counts. Both
// channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rows := make(chan []string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		send := func(ch chan<- []string, rec []string) bool {
			select {
			case ch <- rec:
				return true
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return false
			}
		}

		for line := 0; ; line++ {
			if err := ctx.Err(); err != nil {
				errs <- eris.Wrap(err, "csv: context cancelled")
				return
			}
			rec, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- eris.Wrap(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				for i := range rec {
					rec[i] = strings.TrimSpace(rec[i])
				}
			}
			if line == 0 && opts.HasHeader {
				if opts.HeaderCh != nil && !send(opts.HeaderCh, rec) {
					return
				}
				continue
			}
			if !send(rows, rec) {
				return
			}
		}
	}()

	return rows, errs
}

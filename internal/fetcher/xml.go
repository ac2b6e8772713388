package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// StreamXML decodes every element whose name matches and sends it to a
// channel. An empty name.Space matches the local name in any namespace;
// otherwise both parts must match. Both channels are closed when the
// document ends, on the first error, or when ctx is done.
func StreamXML[T any](ctx context.Context, r io.Reader, name xml.Name) (<-chan T, <-chan error) {
	items := make(chan T, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		dec := xml.NewDecoder(r)
		dec.CharsetReader = charsetReader

		for {
			if err := ctx.Err(); err != nil {
				errs <- eris.Wrap(err, "xml: context cancelled")
				return
			}
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- eris.Wrap(err, "xml: read token")
				return
			}
			start, ok := tok.(xml.StartElement)
			if !ok || !matchName(start.Name, name) {
				continue
			}

			var item T
			if err := dec.DecodeElement(&item, &start); err != nil {
				errs <- eris.Wrapf(err, "xml: decode <%s>", name.Local)
				return
			}
			select {
			case items <- item:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return items, errs
}

func matchName(got, want xml.Name) bool {
	if got.Local != want.Local {
		return false
	}
	return want.Space == "" || got.Space == want.Space
}

// charsetReader lets sitemaps declared as ISO-8859-1 or windows-1252 decode.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

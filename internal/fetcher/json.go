package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array. An empty
// body yields no elements. Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	items := make(chan T, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			errs <- eris.Wrap(err, "json: read opening token")
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			errs <- eris.Errorf("json: expected array, got %v", tok)
			return
		}

		for i := 0; dec.More(); i++ {
			var item T
			if err := dec.Decode(&item); err != nil {
				errs <- eris.Wrapf(err, "json: decode element %d", i)
				return
			}
			select {
			case items <- item:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := dec.Token(); err != nil && err != io.EOF {
			errs <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return items, errs
}

// DecodeJSONObject decodes a single JSON document from r into a T.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

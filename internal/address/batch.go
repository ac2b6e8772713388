package address

import (
	"errors"

	"github.com/sells-group/storemap/internal/model"
)

// Result pairs one input link with its parse outcome.
type Result struct {
	Input   string
	Address model.GeoAddress
	Err     error
}

// ParseMapLinks parses every link independently and returns one Result per
// input, in input order. Blank lines are skipped.
func ParseMapLinks(links []string) []Result {
	out := make([]Result, 0, len(links))
	for _, link := range links {
		if link == "" {
			continue
		}
		addr, err := ParseMapLink(link)
		out = append(out, Result{Input: link, Address: addr, Err: err})
	}
	return out
}

// Split separates successful addresses from format errors.
func Split(results []Result) ([]model.GeoAddress, []*AddressFormatError) {
	var addrs []model.GeoAddress
	var failed []*AddressFormatError
	for _, r := range results {
		if r.Err == nil {
			addrs = append(addrs, r.Address)
			continue
		}
		var fe *AddressFormatError
		if errors.As(r.Err, &fe) {
			failed = append(failed, fe)
		} else {
			failed = append(failed, &AddressFormatError{Input: r.Input, Reason: r.Err.Error()})
		}
	}
	return addrs, failed
}

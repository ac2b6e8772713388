package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Chain identifies the retail chain a location belongs to.
type Chain string

const (
	ChainAldi Chain = "aldi"
	ChainLidl Chain = "lidl"
)

// ParseChain converts a string into a Chain.
func ParseChain(s string) (Chain, error) {
	switch Chain(s) {
	case ChainAldi, ChainLidl:
		return Chain(s), nil
	default:
		return "", eris.Errorf("unknown chain: %q (valid: aldi, lidl)", s)
	}
}

// Source names as stored alongside each location.
const (
	SourceAldiNord = "aldi_nord"
	SourceAldiSued = "aldi_sued"
	SourceLidl     = "lidl"
)

// Location is a GeoAddress as persisted by the store.
type Location struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Chain       Chain      `json:"chain"`
	URL         string     `json:"url,omitempty"`
	Address     GeoAddress `json:"address"`
	CollectedAt time.Time  `json:"collected_at"`
}

// Coordinates extracts the positions of the given locations in order.
func Coordinates(locs []Location) []Coordinate {
	out := make([]Coordinate, len(locs))
	for i, l := range locs {
		out[i] = l.Address.Coordinate()
	}
	return out
}

// Addresses extracts the addresses of the given locations in order.
func Addresses(locs []Location) []GeoAddress {
	out := make([]GeoAddress, len(locs))
	for i, l := range locs {
		out[i] = l.Address
	}
	return out
}

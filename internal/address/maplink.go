// Package address recovers canonical addresses from semi-structured source strings.
package address

import (
	"strconv"
	"strings"

	"github.com/sells-group/storemap/internal/model"
)

// posMarker introduces the position payload of a map-preview deep link, e.g.
//
//	https://www.bing.com/mapspreview?rtp=~pos.48.82852_10.11375_Lidl+-+Ulmer+Str.+150+73431+Aalen
const posMarker = "pos."

// mapLink holds the raw, still encoded tokens of one grammar match.
type mapLink struct {
	lat, lon   string
	street     string
	number     string
	postalCode string
	city       string
}

// ParseMapLink extracts a GeoAddress from a map-preview link of the form
//
//	pos.<lat>_<lon>_[<vendor>-+]<street>[+<number>]+<PLZ>+<city>
//
// The first "pos." marker at which the whole grammar matches wins. A token
// after the street is read as a house number unless it is exactly five
// digits, in which case it is the postal code.
func ParseMapLink(link string) (model.GeoAddress, error) {
	found := false
	for off := 0; off <= len(link); {
		j := strings.Index(link[off:], posMarker)
		if j < 0 {
			break
		}
		found = true
		start := off + j
		if m, ok := matchPosition(link[start+len(posMarker):]); ok {
			return m.address(link)
		}
		off = start + 1
	}

	if !found {
		return model.GeoAddress{}, formatError(link, "no "+posMarker+" marker")
	}
	return model.GeoAddress{}, formatError(link, "no coordinates, street, postal code and city after marker")
}

// matchPosition applies the grammar after the marker:
// coordinate '_' coordinate '_' body.
func matchPosition(s string) (mapLink, bool) {
	lat, rest, ok := coordinateToken(s)
	if !ok {
		return mapLink{}, false
	}
	lon, rest, ok := coordinateToken(rest)
	if !ok {
		return mapLink{}, false
	}

	for _, body := range vendorCandidates(rest) {
		if m, ok := matchBody(body); ok {
			m.lat, m.lon = lat, lon
			return m, true
		}
	}
	return mapLink{}, false
}

// coordinateToken reads [+-]?digits.digits followed by the '_' separator.
func coordinateToken(s string) (tok, rest string, ok bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	n := digitRun(s[i:])
	if n == 0 {
		return "", "", false
	}
	i += n
	if i >= len(s) || s[i] != '.' {
		return "", "", false
	}
	i++
	n = digitRun(s[i:])
	if n == 0 {
		return "", "", false
	}
	i += n
	if i >= len(s) || s[i] != '_' {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// vendorCandidates lists the bodies to try, in order: after each "-+" vendor
// separator found before the first '_' (shortest vendor first), then the
// whole string with no vendor segment.
func vendorCandidates(s string) []string {
	limit := strings.IndexByte(s, '_')
	if limit < 0 {
		limit = len(s)
	}
	var out []string
	for k := 0; k < limit && k+1 < len(s); k++ {
		if s[k] == '-' && s[k+1] == '+' {
			out = append(out, s[k+2:])
		}
	}
	return append(out, s)
}

// matchBody finds the shortest street for which the remaining tokens parse,
// preferring a house number over none at each street length.
func matchBody(s string) (mapLink, bool) {
	for n := 1; n < len(s); n++ {
		if s[n] != '+' {
			continue
		}
		street := s[:n]
		if strings.IndexByte(street, '\n') >= 0 {
			return mapLink{}, false
		}

		if number, after, ok := houseNumberToken(s, n); ok {
			if pc, city, ok := postalCityTokens(s, after); ok {
				return mapLink{street: street, number: number, postalCode: pc, city: city}, true
			}
		}
		if pc, city, ok := postalCityTokens(s, n); ok {
			return mapLink{street: street, postalCode: pc, city: city}, true
		}
	}
	return mapLink{}, false
}

// houseNumberToken reads '+' token where the token runs to the next '+'.
// A token of exactly five digits is rejected: it is the postal code.
func houseNumberToken(s string, i int) (tok string, next int, ok bool) {
	end := strings.IndexByte(s[i+1:], '+')
	if end <= 0 {
		return "", 0, false
	}
	tok = s[i+1 : i+1+end]
	if len(tok) == model.PostalCodeDigits && digitRun(tok) == len(tok) {
		return "", 0, false
	}
	return tok, i + 1 + end, true
}

// postalCityTokens reads '+' five digits '+' city, where city runs to the
// next '+', '&' or the end of the input and must not be empty.
func postalCityTokens(s string, i int) (pc, city string, ok bool) {
	const width = model.PostalCodeDigits
	if i+width+2 > len(s) || s[i] != '+' {
		return "", "", false
	}
	pc = s[i+1 : i+1+width]
	if digitRun(pc) != width || s[i+1+width] != '+' {
		return "", "", false
	}
	rest := s[i+2+width:]
	if end := strings.IndexAny(rest, "+&"); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", "", false
	}
	return pc, rest, true
}

func digitRun(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

// address decodes the matched tokens and validates the resulting record.
func (m mapLink) address(input string) (model.GeoAddress, error) {
	lat, err := strconv.ParseFloat(m.lat, 64)
	if err != nil {
		return model.GeoAddress{}, formatError(input, "latitude "+m.lat+" is not a decimal")
	}
	lon, err := strconv.ParseFloat(m.lon, 64)
	if err != nil {
		return model.GeoAddress{}, formatError(input, "longitude "+m.lon+" is not a decimal")
	}

	street := DecodePlus(m.street)
	number := ""
	if m.number != "" {
		number = DecodePlus(m.number)
		street = street + " " + number
	}

	addr := model.GeoAddress{
		Street:      street,
		HouseNumber: number,
		PostalCode:  m.postalCode,
		City:        strings.TrimSpace(DecodePlus(m.city)),
		Latitude:    lat,
		Longitude:   lon,
	}
	if err := addr.Validate(); err != nil {
		return model.GeoAddress{}, formatError(input, err.Error())
	}
	return addr, nil
}

package model

import (
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/rotisserie/eris"
)

// RecordHeader is the fixed column order of an address table. Downstream
// consumers look columns up by these exact names.
var RecordHeader = []string{"Street", "Postalcode", "City", "Latitude", "Longitude"}

// PostalCodeDigits is the length of a German postal code (PLZ).
const PostalCodeDigits = 5

// Coordinate is a WGS-84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the coordinate lies within the latitude and longitude ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// GeoAddress is the canonical address record produced by every extractor.
// Street carries the house number appended when one is known.
type GeoAddress struct {
	Street      string  `json:"street"`
	HouseNumber string  `json:"house_number,omitempty"`
	PostalCode  string  `json:"postal_code"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Coordinate returns the position of the address.
func (a GeoAddress) Coordinate() Coordinate {
	return Coordinate{Lat: a.Latitude, Lon: a.Longitude}
}

// Validate checks the postal code format and coordinate ranges.
func (a GeoAddress) Validate() error {
	if !IsPostalCode(a.PostalCode) {
		return eris.Errorf("model: postal code %q is not %d digits", a.PostalCode, PostalCodeDigits)
	}
	if a.Latitude < -90 || a.Latitude > 90 {
		return eris.Errorf("model: latitude %v out of range", a.Latitude)
	}
	if a.Longitude < -180 || a.Longitude > 180 {
		return eris.Errorf("model: longitude %v out of range", a.Longitude)
	}
	return nil
}

// Record renders the address in RecordHeader column order.
func (a GeoAddress) Record() []string {
	return []string{
		a.Street,
		a.PostalCode,
		a.City,
		FormatDegrees(a.Latitude),
		FormatDegrees(a.Longitude),
	}
}

// MatchKey returns a normalized key identifying the address independent of
// spelling variants such as "Straße" vs "Strasse" or letter case.
func (a GeoAddress) MatchKey() string {
	street := strings.ToLower(unidecode.Unidecode(a.Street))
	street = strings.Join(strings.FieldsFunc(street, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "")
	return a.PostalCode + ":" + street
}

// IsPostalCode reports whether s is exactly PostalCodeDigits ASCII digits.
func IsPostalCode(s string) bool {
	if len(s) != PostalCodeDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatDegrees prints a coordinate with the shortest exact representation.
func FormatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

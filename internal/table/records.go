package table

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/storemap/internal/model"
)

// WriteRecordsCSV writes addrs under model.RecordHeader.
func WriteRecordsCSV(w io.Writer, addrs []model.GeoAddress) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.RecordHeader); err != nil {
		return eris.Wrap(err, "table: write csv header")
	}
	for i, a := range addrs {
		if err := cw.Write(a.Record()); err != nil {
			return eris.Wrapf(err, "table: write csv record %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "table: flush csv")
}

// WriteRecordsXLSX saves addrs as a one-sheet workbook at path.
func WriteRecordsXLSX(path, sheetName string, addrs []model.GeoAddress) error {
	if sheetName == "" {
		sheetName = "Addresses"
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "table: add sheet %q", sheetName)
	}

	header := sheet.AddRow()
	for _, h := range model.RecordHeader {
		header.AddCell().SetString(h)
	}
	for _, a := range addrs {
		row := sheet.AddRow()
		row.AddCell().SetString(a.Street)
		row.AddCell().SetString(a.PostalCode)
		row.AddCell().SetString(a.City)
		row.AddCell().SetFloat(a.Latitude)
		row.AddCell().SetFloat(a.Longitude)
	}
	return eris.Wrapf(f.Save(path), "table: save %s", path)
}

// Shapefile attribute columns. DBF names are limited to 10 characters.
var shapeFields = []shp.Field{
	shp.StringField("STREET", 100),
	shp.StringField("PLZ", 5),
	shp.StringField("CITY", 60),
}

// WriteShapefile writes addrs as WGS-84 points with street, postal code and
// city attributes. path names the .shp file; the .shx and .dbf siblings are
// created next to it.
func WriteShapefile(path string, addrs []model.GeoAddress) error {
	base := path
	if strings.HasSuffix(strings.ToLower(base), ".shp") {
		base = base[:len(base)-len(".shp")]
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "table: create shapefile %s", path)
	}
	if err := writeShapes(w, addrs); err != nil {
		w.Close()
		_ = os.Remove(base + "dbf")
		return err
	}
	w.Close()

	// go-shp names the attribute table base+"dbf" without the dot.
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrapf(err, "table: rename attribute table for %s", path)
	}
	return nil
}

func writeShapes(w *shp.Writer, addrs []model.GeoAddress) error {
	if err := w.SetFields(shapeFields); err != nil {
		return eris.Wrap(err, "table: set shapefile fields")
	}
	for _, a := range addrs {
		idx := int(w.Write(&shp.Point{X: a.Longitude, Y: a.Latitude}))
		for field, v := range []string{a.Street, a.PostalCode, a.City} {
			if err := w.WriteAttribute(idx, field, v); err != nil {
				return eris.Wrapf(err, "table: write attribute %d of record %d", field, idx)
			}
		}
	}
	return nil
}

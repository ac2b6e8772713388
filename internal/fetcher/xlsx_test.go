package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, sheets ...[][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for i, rows := range sheets {
		sheet, err := f.AddSheet([]string{"Aldi", "Lidl", "Extra"}[i])
		require.NoError(t, err)
		for _, r := range rows {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "coords.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_Header(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Latitude", "Longitude"},
		{"48.84", "10.09"},
		{"52.52", "13.40"},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Latitude", "Longitude"}, header)
	assert.Equal(t, [][]string{{"48.84", "10.09"}, {"52.52", "13.40"}}, rows)
}

func TestReadXLSX_NoHeader(t *testing.T) {
	path := writeWorkbook(t, [][]string{{"1", "2"}})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := writeWorkbook(t, [][]string{{"aldi"}}, [][]string{{"lidl"}})

	_, rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Lidl"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"lidl"}}, rows)

	_, rows, err = ReadXLSX(path, XLSXOptions{SheetIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"lidl"}}, rows)
}

func TestReadXLSX_Errors(t *testing.T) {
	path := writeWorkbook(t, [][]string{{"x"}})

	_, _, err := ReadXLSX(path, XLSXOptions{SheetName: "Penny"})
	assert.ErrorContains(t, err, `sheet "Penny" not found`)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, _, err = ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	require.Error(t, err)
}

// Package table reads and writes the flat files the CLI exchanges: link
// lists, address records, coordinate tables and distance lists.
package table

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const maxLineBytes = 1 << 20

// ReadLines returns the non-blank lines of r with surrounding whitespace
// removed.
func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "table: read lines")
	}
	return out, nil
}

// WriteLines writes one line per element.
func WriteLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(l); err != nil {
			return eris.Wrap(err, "table: write lines")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrap(err, "table: write lines")
		}
	}
	return eris.Wrap(bw.Flush(), "table: flush lines")
}

// WriteDistances writes one distance in meters per line, in input order.
func WriteDistances(w io.Writer, meters []float64) error {
	lines := make([]string, len(meters))
	for i, m := range meters {
		lines[i] = strconv.FormatFloat(m, 'f', -1, 64)
	}
	return WriteLines(w, lines)
}

// ReadDistances parses a file written by WriteDistances. Blank lines are
// ignored.
func ReadDistances(r io.Reader) ([]float64, error) {
	lines, err := ReadLines(r)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(lines))
	for i, l := range lines {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "table: distance %d", i+1)
		}
		out[i] = v
	}
	return out, nil
}

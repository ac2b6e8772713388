package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	got, err := ReadLines(strings.NewReader("https://a/1 \r\n\n  \nhttps://a/2\nhttps://a/1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a/1", "https://a/2", "https://a/1"}, got)

	got, err = ReadLines(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLines(&buf, []string{"a", "b"}))
	assert.Equal(t, "a\nb\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteLines(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestDistancesRoundTrip(t *testing.T) {
	in := []float64{0, 1234.5678, 504213.0000001}
	var buf bytes.Buffer
	require.NoError(t, WriteDistances(&buf, in))
	assert.Equal(t, "0\n1234.5678\n504213.0000001\n", buf.String())

	out, err := ReadDistances(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadDistances_Invalid(t *testing.T) {
	_, err := ReadDistances(strings.NewReader("12\nfar\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distance 2")
}

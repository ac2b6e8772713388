package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storemap/internal/model"
)

func names(ss []Source) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Name()
	}
	return out
}

func TestRegistry_Select(t *testing.T) {
	r := NewDefaultRegistry(Config{})
	assert.Equal(t, []string{"aldi_nord", "aldi_sued", "lidl"}, r.AllNames())

	got, err := r.Select("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aldi_nord", "aldi_sued", "lidl"}, names(got))

	got, err = r.Select(model.ChainAldi, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aldi_nord", "aldi_sued"}, names(got))

	got, err = r.Select("", []string{"lidl", "aldi_sued"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lidl", "aldi_sued"}, names(got))

	got, err = r.Select(model.ChainLidl, []string{"aldi_sued"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Select("", []string{"penny"})
	assert.ErrorContains(t, err, `unknown source "penny"`)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSource{name: "a", chain: model.ChainAldi})
	r.Register(&stubSource{name: "a", chain: model.ChainLidl})

	assert.Equal(t, []string{"a"}, r.AllNames())
	s, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, model.ChainLidl, s.Chain())
}

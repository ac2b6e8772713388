package linkdedup

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropPrefixes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		links []string
		want  []string
	}{
		{
			name:  "overview dropped",
			links: []string{"https://a/x", "https://a/x/1", "https://a/y"},
			want:  []string{"https://a/x/1", "https://a/y"},
		},
		{
			name:  "exact duplicates kept",
			links: []string{"https://a/x", "https://a/x"},
			want:  []string{"https://a/x", "https://a/x"},
		},
		{
			name:  "literal prefix not on path boundary",
			links: []string{"https://x.example/store", "https://x.example/store-12"},
			want:  []string{"https://x.example/store-12"},
		},
		{
			name:  "order preserved",
			links: []string{"c/1", "a", "b", "a/2", "c"},
			want:  []string{"c/1", "b", "a/2"},
		},
		{
			name:  "chained prefixes",
			links: []string{"h", "ha", "hal", "halle"},
			want:  []string{"halle"},
		},
		{
			name:  "duplicated prefix removed everywhere",
			links: []string{"a", "ab", "a"},
			want:  []string{"ab"},
		},
		{
			name:  "empty string never a strict prefix",
			links: []string{"", "a"},
			want:  []string{"", "a"},
		},
		{
			name:  "multibyte runes",
			links: []string{"https://a/münchen", "https://a/münchen/süd"},
			want:  []string{"https://a/münchen/süd"},
		},
		{
			name:  "empty input",
			links: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DropPrefixes(tt.links))
		})
	}
}

func TestDropPrefixes_Idempotent(t *testing.T) {
	t.Parallel()

	links := []string{
		"https://filialen.aldi-sued.de/bayern",
		"https://filialen.aldi-sued.de/bayern/augsburg",
		"https://filialen.aldi-sued.de/bayern/augsburg/hauptstr-1",
		"https://filialen.aldi-sued.de/bayern/augsburg/hauptstr-1",
		"https://filialen.aldi-sued.de/hessen/kassel/ring-3",
	}
	once := DropPrefixes(links)
	assert.Equal(t, once, DropPrefixes(once))
	assert.Equal(t, []string{
		"https://filialen.aldi-sued.de/bayern/augsburg/hauptstr-1",
		"https://filialen.aldi-sued.de/bayern/augsburg/hauptstr-1",
		"https://filialen.aldi-sued.de/hessen/kassel/ring-3",
	}, once)
}

func TestDropPrefixes_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	links := []string{"a", "ab"}
	_ = DropPrefixes(links)
	assert.Equal(t, []string{"a", "ab"}, links)
}

// naiveDropPrefixes checks every proper prefix against the input set.
func naiveDropPrefixes(links []string) []string {
	pool := make(map[string]bool, len(links))
	for _, l := range links {
		pool[l] = true
	}
	drop := make(map[string]bool)
	for _, l := range links {
		for i := 1; i < len(l); i++ {
			if pool[l[:i]] {
				drop[l[:i]] = true
			}
		}
	}
	out := []string{}
	for _, l := range links {
		if !drop[l] {
			out = append(out, l)
		}
	}
	return out
}

func TestDropPrefixes_MatchesNaive(t *testing.T) {
	t.Parallel()

	var links []string
	for i := 0; i < 200; i++ {
		base := fmt.Sprintf("https://s/%d", i%17)
		links = append(links, base+strings.Repeat("/x", i%4))
	}
	assert.Equal(t, naiveDropPrefixes(links), DropPrefixes(links))
}

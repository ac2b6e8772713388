package source

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/storemap/internal/model"
)

// Registry maps source names to their implementations.
type Registry struct {
	sources map[string]Source
	order   []string // registration order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds s, replacing any source registered under the same name.
func (r *Registry) Register(s Source) {
	name := s.Name()
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = s
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", name)
	}
	return s, nil
}

// Select returns the sources matching chain and names. An empty chain or
// empty names match everything. Unknown names are an error.
func (r *Registry) Select(chain model.Chain, names []string) ([]Source, error) {
	candidates := r.All()
	if len(names) > 0 {
		candidates = candidates[:0:0]
		for _, name := range names {
			s, err := r.Get(name)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, s)
		}
	}

	var out []Source
	for _, s := range candidates {
		if chain != "" && s.Chain() != chain {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// All returns every source in registration order.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// AllNames returns the registered names in registration order.
func (r *Registry) AllNames() []string {
	return append([]string(nil), r.order...)
}

// Config holds the upstream locations of the built-in sources.
type Config struct {
	AldiNordDump    string `yaml:"aldi_nord_dump" mapstructure:"aldi_nord_dump"`
	AldiSuedSitemap string `yaml:"aldi_sued_sitemap" mapstructure:"aldi_sued_sitemap"`
	LidlBaseURL     string `yaml:"lidl_base_url" mapstructure:"lidl_base_url"`
}

// NewDefaultRegistry registers the built-in sources.
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	r.Register(NewAldiNord(cfg.AldiNordDump))
	r.Register(NewAldiSued(cfg.AldiSuedSitemap))
	r.Register(NewLidl(cfg.LidlBaseURL))
	return r
}

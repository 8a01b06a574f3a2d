package sources

import (
	"fmt"

	"github.com/wonny/meridian/internal/contracts"
)

// Registry maps source IDs to their connectors for a run.
type Registry struct {
	connectors map[contracts.SourceID]contracts.Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[contracts.SourceID]contracts.Connector)}
}

// NewFixtureRegistry wires a fixture connector for every known source.
func NewFixtureRegistry(dir string) *Registry {
	r := NewRegistry()
	for _, src := range contracts.AllSources() {
		r.Register(NewFixture(src, dir))
	}
	return r
}

// Register adds a connector; a second connector for the same source replaces
// the first.
func (r *Registry) Register(c contracts.Connector) {
	r.connectors[c.Source()] = c
}

// Get returns the connector for a source.
func (r *Registry) Get(source contracts.SourceID) (contracts.Connector, error) {
	c, ok := r.connectors[source]
	if !ok {
		return nil, fmt.Errorf("no connector registered for source %s", source)
	}
	return c, nil
}

// Sources returns the registered sources in canonical order.
func (r *Registry) Sources() []contracts.SourceID {
	var out []contracts.SourceID
	for _, src := range contracts.AllSources() {
		if _, ok := r.connectors[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

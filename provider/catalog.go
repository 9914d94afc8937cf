package provider

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/njfio/tau/tauerrors"
)

// CatalogEntry describes one provider/model combination available for
// routing, grounded on original_source's model_catalog.rs and the
// teacher's llm/router.ModelCandidate shape.
type CatalogEntry struct {
	Provider     string   `yaml:"provider" json:"provider"`
	Model        string   `yaml:"model" json:"model"`
	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	PriceInput   float64  `yaml:"price_input,omitempty" json:"price_input,omitempty"`
	PriceOutput  float64  `yaml:"price_output,omitempty" json:"price_output,omitempty"`
	MaxLatencyMs int      `yaml:"max_latency_ms,omitempty" json:"max_latency_ms,omitempty"`
}

// ModelCatalog is the loaded list of catalog entries; RoutesFor looks
// entries up by their "provider/model" id.
type ModelCatalog struct {
	Entries []CatalogEntry `yaml:"entries" json:"entries"`
}

// LoadModelCatalog reads a YAML catalog file from path.
func LoadModelCatalog(path string) (*ModelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tauerrors.Newf(tauerrors.CodeInvalidPayload, "failed to read model catalog: %v", err)
	}
	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, tauerrors.Newf(tauerrors.CodeInvalidPayload, "failed to parse model catalog: %v", err)
	}
	return &catalog, nil
}

// RoutesFor builds an ordered Route list for the named provider/model
// pairs, in the order given, wiring each to the supplied client factory.
func (c *ModelCatalog) RoutesFor(order []string, clientFor func(provider string) Client) []Route {
	byKey := make(map[string]CatalogEntry, len(c.Entries))
	for _, e := range c.Entries {
		byKey[e.Provider+"/"+e.Model] = e
	}

	routes := make([]Route, 0, len(order))
	for _, key := range order {
		entry, ok := byKey[key]
		if !ok {
			continue
		}
		routes = append(routes, Route{
			Provider: entry.Provider,
			Model:    entry.Provider + "/" + entry.Model,
			Client:   clientFor(entry.Provider),
		})
	}
	return routes
}

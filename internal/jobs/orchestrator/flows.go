package orchestrator

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

//go:embed flows.yaml
var defaultFlowsYAML []byte

// FlowDefinition maps each stage to the module keys it schedules.
type FlowDefinition struct {
	Key         string                   `yaml:"key"`
	Default     bool                     `yaml:"default"`
	Description string                   `yaml:"description"`
	Stages      map[flows.Stage][]string `yaml:"stages"`
}

// ModuleKeys returns the keys configured for stage, nil when none.
func (d *FlowDefinition) ModuleKeys(stage flows.Stage) []string {
	if d == nil {
		return nil
	}
	return d.Stages[stage]
}

type flowFile struct {
	Flows []*FlowDefinition `yaml:"flows"`
}

type Catalog struct {
	defs       map[string]*FlowDefinition
	defaultKey string
}

// DefaultCatalog parses the embedded flow definitions.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultFlowsYAML)
}

// LoadCatalog reads definitions from path, or the embedded set when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read flow definitions %s", path)
	}
	return ParseCatalog(b)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	const op = "flows.ParseCatalog"
	var f flowFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Validation(op, "invalid flow yaml: %v", err)
	}
	c := &Catalog{defs: map[string]*FlowDefinition{}}
	for _, d := range f.Flows {
		if d == nil {
			continue
		}
		d.Key = strings.TrimSpace(d.Key)
		if d.Key == "" {
			return nil, errors.Validation(op, "flow without key")
		}
		if _, dup := c.defs[d.Key]; dup {
			return nil, errors.Validation(op, "duplicate flow %q", d.Key)
		}
		for st, keys := range d.Stages {
			if !knownStage(st) {
				return nil, errors.Validation(op, "flow %q: unknown stage %q", d.Key, st)
			}
			for _, k := range keys {
				if strings.TrimSpace(k) == "" {
					return nil, errors.Validation(op, "flow %q: empty module key in %s", d.Key, st)
				}
			}
		}
		if d.Default {
			if c.defaultKey != "" {
				return nil, errors.Validation(op, "flows %q and %q are both default", c.defaultKey, d.Key)
			}
			c.defaultKey = d.Key
		}
		c.defs[d.Key] = d
	}
	if len(c.defs) == 0 {
		return nil, errors.Validation(op, "no flows defined")
	}
	return c, nil
}

func knownStage(s flows.Stage) bool {
	for _, st := range flows.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// Resolve returns the flow for key, or the default flow when key is blank.
func (c *Catalog) Resolve(key string) (*FlowDefinition, error) {
	const op = "flows.Resolve"
	key = strings.TrimSpace(key)
	if key == "" {
		key = c.defaultKey
	}
	if key == "" {
		return nil, errors.Validation(op, "no flow key given and no default flow configured")
	}
	d, ok := c.defs[key]
	if !ok {
		return nil, errors.NotFound(op, "flow %q not defined", key)
	}
	return d, nil
}

func (c *Catalog) Keys() []string {
	out := make([]string, 0, len(c.defs))
	for k := range c.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

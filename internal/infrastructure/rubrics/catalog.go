package rubrics

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Rubrics []domain.Rubric `yaml:"rubrics"`
}

// Catalog is an in-memory, read-only set of rubrics keyed by name.
type Catalog struct {
	byName  map[string]domain.Rubric
	ordered []domain.Rubric
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rubric catalog: %w", err)
		}
		data = raw
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rubric catalog: %w", err)
	}
	if len(file.Rubrics) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse rubric catalog", fmt.Errorf("catalog has no rubrics"))
	}

	c := &Catalog{byName: make(map[string]domain.Rubric, len(file.Rubrics))}
	for _, r := range file.Rubrics {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rubric catalog", fmt.Errorf("rubric without name"))
		}
		if strings.TrimSpace(r.Prompt) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rubric catalog", fmt.Errorf("rubric %q has an empty prompt", r.Name))
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rubric catalog", fmt.Errorf("duplicate rubric %q", r.Name))
		}
		if r.DisplayName == "" {
			r.DisplayName = r.Name
		}
		c.byName[r.Name] = r
		c.ordered = append(c.ordered, r)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].SortOrder < c.ordered[j].SortOrder
	})
	return c, nil
}

func (c *Catalog) Get(name string) (domain.Rubric, error) {
	r, ok := c.byName[strings.TrimSpace(name)]
	if !ok {
		return domain.Rubric{}, domain.WrapError(domain.ErrRubricNotFound, "get rubric", fmt.Errorf("unknown rubric %q", name))
	}
	return r, nil
}

func (c *Catalog) List(activeOnly bool) []domain.Rubric {
	out := make([]domain.Rubric, 0, len(c.ordered))
	for _, r := range c.ordered {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Names returns every rubric name, active or not.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.ordered))
	for _, r := range c.ordered {
		out = append(out, r.Name)
	}
	return out
}

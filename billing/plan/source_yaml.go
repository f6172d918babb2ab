package plan

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// yamlSource loads the catalog from a YAML file, the deployment format
// for environments that do not manage plans in the database:
//
//	plans:
//	  - name: Free
//	    monthly_token_limit: 10000
//	    price: {amount_cents: 0, currency: USD}
//	    is_active: true
type yamlSource struct {
	path string
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Price             Money  `yaml:"price"`
	IsActive          bool   `yaml:"is_active"`
}

// NewYAMLSource returns a Source reading the catalog file at path on
// every Load.
func NewYAMLSource(path string) Source {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) ([]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", s.path, err)
	}

	var doc yamlCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plan catalog %s: %w", s.path, err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for _, yp := range doc.Plans {
		p := Plan{
			Name:              yp.Name,
			MonthlyTokenLimit: yp.MonthlyTokenLimit,
			Price:             yp.Price,
			IsActive:          yp.IsActive,
		}
		if yp.ID != "" {
			id, err := uuid.Parse(yp.ID)
			if err != nil {
				return nil, fmt.Errorf("plan %q: invalid id: %w", yp.Name, err)
			}
			p.ID = id
		} else {
			// Stable IDs matter only for database-backed catalogs;
			// file-backed plans are addressed by name.
			p.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(yp.Name))
		}
		plans = append(plans, p)
	}
	return plans, nil
}

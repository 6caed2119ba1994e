// Package catalog serves the product picker from a YAML product file.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"designlab/core"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type fileProduct struct {
	core.Product `yaml:",inline"`
	Price        string `yaml:"price"`
}

type catalogFile struct {
	Products []fileProduct `yaml:"products"`
}

type Catalog struct {
	products []*core.Product
}

// New builds a catalog from products already in memory.
func New(products []*core.Product) *Catalog {
	sorted := make([]*core.Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return &Catalog{products: sorted}
}

// Load reads the product file at path. Relative image paths resolve under
// <mediaBaseURL>/products/.
func Load(path, mediaBaseURL string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f, mediaBaseURL)
}

func Parse(r io.Reader, mediaBaseURL string) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	products := make([]*core.Product, 0, len(file.Products))
	seen := make(map[string]bool, len(file.Products))
	for i, fp := range file.Products {
		p := fp.Product
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("product #%d: id and name are required", i+1)
		}
		key := p.TenantID + "/" + p.ID
		if seen[key] {
			return nil, fmt.Errorf("product %s: duplicate id for tenant %q", p.ID, p.TenantID)
		}
		seen[key] = true

		if fp.Price != "" {
			price, err := decimal.NewFromString(fp.Price)
			if err != nil {
				return nil, fmt.Errorf("product %s: invalid price %q: %w", p.ID, fp.Price, err)
			}
			p.BasePrice = price
		}
		p.ImageURL = resolveImage(p.ImageURL, mediaBaseURL)
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Unix(0, 0).UTC()
		}
		products = append(products, &p)
	}

	logrus.WithField("count", len(products)).Info("Product catalog loaded")
	return New(products), nil
}

func resolveImage(image, mediaBaseURL string) string {
	if image == "" || strings.Contains(image, "://") || strings.HasPrefix(image, "/") {
		return image
	}
	return strings.TrimSuffix(mediaBaseURL, "/") + "/products/" + image
}

// List returns the tenant's products, newest first, whose name contains query
// (case-insensitive). An empty query matches everything.
func (c *Catalog) List(ctx context.Context, tenantID, query string) ([]*core.Product, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []*core.Product{}
	for _, p := range c.products {
		if p.TenantID != tenantID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, tenantID, id string) (*core.Product, error) {
	for _, p := range c.products {
		if p.TenantID == tenantID && p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", id, core.ErrNotFound)
}

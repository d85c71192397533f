// Package catalog is the read-only supplier product reference. The ledger consults it
// to fill descriptors on import and for search; it never changes catalog data.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Product is one supplier catalog line.
type Product struct {
	Code             string          `json:"code" yaml:"code"`
	Name             string          `json:"name" yaml:"name"`
	ActiveIngredient string          `json:"active_ingredient,omitempty" yaml:"active_ingredient"`
	Form             string          `json:"form,omitempty" yaml:"form"`
	Unit             string          `json:"unit" yaml:"unit"`
	UnitPrice        decimal.Decimal `json:"unit_price" yaml:"unit_price"`
	SupplierID       string          `json:"supplier_id" yaml:"supplier_id"`
}

// Supplier is a vendor the facility buys from.
type Supplier struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Oracle answers product and supplier questions.
type Oracle interface {
	// Search matches name or active ingredient, case-insensitive substring.
	Search(ctx context.Context, query string) ([]Product, error)
	// Product returns errors.NotFound for an unknown code.
	Product(ctx context.Context, code string) (*Product, error)
	// SupplierName returns errors.NotFound for an unknown supplier.
	SupplierName(ctx context.Context, supplierID string) (string, error)
}

// StaticOracle holds a catalog loaded once at startup.
type StaticOracle struct {
	products  map[string]Product
	codes     []string
	suppliers map[string]string
}

// File is the on-disk catalog layout.
type File struct {
	Suppliers []Supplier `yaml:"suppliers"`
	Products  []Product  `yaml:"products"`
}

// NewStaticOracle indexes a catalog.
func NewStaticOracle(f File) *StaticOracle {
	o := &StaticOracle{
		products:  make(map[string]Product, len(f.Products)),
		suppliers: make(map[string]string, len(f.Suppliers)),
	}
	for _, s := range f.Suppliers {
		o.suppliers[s.ID] = s.Name
	}
	for _, p := range f.Products {
		if _, dup := o.products[p.Code]; !dup {
			o.codes = append(o.codes, p.Code)
		}
		o.products[p.Code] = p
	}
	sort.Strings(o.codes)
	return o
}

// LoadStaticOracle reads a YAML catalog file.
func LoadStaticOracle(path string) (*StaticOracle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return NewStaticOracle(f), nil
}

func (o *StaticOracle) Search(_ context.Context, query string) ([]Product, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Product, 0)
	for _, code := range o.codes {
		p := o.products[code]
		if q == "" ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.ActiveIngredient), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (o *StaticOracle) Product(_ context.Context, code string) (*Product, error) {
	p, ok := o.products[code]
	if !ok {
		return nil, errors.NotFound("catalog product")
	}
	return &p, nil
}

func (o *StaticOracle) SupplierName(_ context.Context, supplierID string) (string, error) {
	name, ok := o.suppliers[supplierID]
	if !ok {
		return "", errors.NotFound("supplier")
	}
	return name, nil
}

var _ Oracle = (*StaticOracle)(nil)

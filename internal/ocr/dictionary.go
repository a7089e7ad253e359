package ocr

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// CatalogEntry is one product's textual identity in the match dictionary.
type CatalogEntry struct {
	ProductID string   `yaml:"product_id"`
	Name      string   `yaml:"name"`
	Brand     string   `yaml:"brand"`
	Aliases   []string `yaml:"aliases"`
}

// Dictionary holds the catalog vocabulary with every term pre-normalized
// so matching never normalizes the same string twice.
type Dictionary struct {
	entries []dictEntry
}

type dictEntry struct {
	productID string
	terms     []string
}

// LoadDictionary reads a yaml catalog dictionary from disk.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	var raw struct {
		Products []CatalogEntry `yaml:"products"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return NewDictionary(raw.Products)
}

// NewDictionary builds a dictionary from catalog entries.
func NewDictionary(products []CatalogEntry) (*Dictionary, error) {
	d := &Dictionary{entries: make([]dictEntry, 0, len(products))}
	for i, p := range products {
		if p.ProductID == "" {
			return nil, errors.Newf("catalog entry %d has no product id", i).
				Component("ocr").
				Category(errors.CategoryValidation).
				Build()
		}
		terms := make([]string, 0, 2+len(p.Aliases))
		for _, t := range append([]string{p.Name, p.Brand}, p.Aliases...) {
			if n := NormalizeText(t); n != "" {
				terms = append(terms, n)
			}
		}
		if len(terms) == 0 {
			continue
		}
		d.entries = append(d.entries, dictEntry{productID: p.ProductID, terms: terms})
	}
	return d, nil
}

// Len reports how many products carry at least one matchable term.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

package threat

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownAttackType is returned by Find for names outside the catalog.
var ErrUnknownAttackType = errors.New("unknown attack type")

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogEntry is the reference text for one attack type.
type CatalogEntry struct {
	Type        AttackType  `yaml:"-" json:"type"`
	Title       string      `yaml:"title" json:"title"`
	Description string      `yaml:"description" json:"description"`
	Impacts     []string    `yaml:"impacts" json:"impacts"`
	Remediation []string    `yaml:"remediation" json:"remediation"`
	Indicators  []Indicator `yaml:"indicators" json:"indicators,omitempty"`
}

// Indicator is a phrase whose presence in free text points at an attack type.
type Indicator struct {
	Phrase string `yaml:"phrase" json:"phrase"`
	Weight int    `yaml:"weight" json:"weight"`
}

// catalogFile is the top-level shape of catalog.yaml.
type catalogFile struct {
	AttackTypes map[string]CatalogEntry `yaml:"attack_types"`
}

// Catalog maps each known attack type to its reference text.
type Catalog struct {
	entries map[AttackType]CatalogEntry
}

// LoadCatalog decodes the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// MustLoadCatalog is LoadCatalog for callers that treat a broken embed as fatal.
func MustLoadCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(fmt.Sprintf("attack catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes a catalog document and checks that it covers exactly
// the known attack types. Indicator phrases are stored normalized.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	var errs []string
	entries := make(map[AttackType]CatalogEntry, len(f.AttackTypes))
	for key, e := range f.AttackTypes {
		at := AttackType(key)
		if !at.Known() {
			errs = append(errs, fmt.Sprintf("unknown attack type %q", key))
			continue
		}
		if e.Title == "" {
			errs = append(errs, fmt.Sprintf("%s: title is required", key))
		}
		for i, ind := range e.Indicators {
			if strings.TrimSpace(ind.Phrase) == "" || ind.Weight <= 0 {
				errs = append(errs, fmt.Sprintf("%s: indicator %d needs a phrase and a positive weight", key, i))
				continue
			}
			e.Indicators[i].Phrase = normalizeText(ind.Phrase)
		}
		e.Type = at
		entries[at] = e
	}
	for _, at := range KnownAttackTypes {
		if _, ok := entries[at]; !ok {
			errs = append(errs, fmt.Sprintf("missing entry for %s", at))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("invalid catalog:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return &Catalog{entries: entries}, nil
}

// Lookup returns the entry for at.
func (c *Catalog) Lookup(at AttackType) (CatalogEntry, bool) {
	e, ok := c.entries[at]
	return e, ok
}

// Find looks up an attack type by name, ignoring case and surrounding space.
func (c *Catalog) Find(name string) (CatalogEntry, error) {
	at := AttackType(strings.ToLower(strings.TrimSpace(name)))
	e, ok := c.Lookup(at)
	if !ok {
		return CatalogEntry{}, fmt.Errorf("%w: %q", ErrUnknownAttackType, name)
	}
	return e, nil
}

// Entries returns all entries in KnownAttackTypes order.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(KnownAttackTypes))
	for _, at := range KnownAttackTypes {
		out = append(out, c.entries[at])
	}
	return out
}

package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"papergraph/backend/internal/records"
)

//go:embed synonyms.yaml
var defaultSynonyms []byte

// Dictionary maps folded surface forms onto canonical names, per label.
type Dictionary struct {
	lookup   map[records.EntityType]map[string]string   // folded form -> canonical
	synonyms map[records.EntityType]map[string][]string // canonical -> surface forms
}

// NewDictionary creates an empty dictionary
func NewDictionary() *Dictionary {
	return &Dictionary{
		lookup:   make(map[records.EntityType]map[string]string),
		synonyms: make(map[records.EntityType]map[string][]string),
	}
}

// DefaultDictionary returns the embedded dictionary.
func DefaultDictionary() (*Dictionary, error) {
	d := NewDictionary()
	if err := d.Merge(defaultSynonyms); err != nil {
		return nil, fmt.Errorf("loading embedded synonyms: %w", err)
	}
	return d, nil
}

// LoadDictionary returns the embedded dictionary extended by the YAML file at
// path. An empty path returns the embedded dictionary alone.
func LoadDictionary(path string) (*Dictionary, error) {
	d, err := DefaultDictionary()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return d, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading synonyms file: %w", err)
	}
	if err := d.Merge(data); err != nil {
		return nil, fmt.Errorf("parsing synonyms file %s: %w", path, err)
	}
	return d, nil
}

// Merge adds the entries of a YAML document shaped as
// label -> canonical -> [synonyms].
func (d *Dictionary) Merge(data []byte) error {
	var doc map[string]map[string][]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	for label, entries := range doc {
		t := records.EntityType(label)
		for canonical, syns := range entries {
			d.Add(t, canonical, syns...)
		}
	}
	return nil
}

// Add registers canonical and its synonyms under label t.
func (d *Dictionary) Add(t records.EntityType, canonical string, synonyms ...string) {
	if d.lookup[t] == nil {
		d.lookup[t] = make(map[string]string)
		d.synonyms[t] = make(map[string][]string)
	}
	d.lookup[t][Fold(canonical)] = canonical
	if long, acr, ok := SplitAcronym(canonical); ok {
		d.lookup[t][Fold(long)] = canonical
		d.lookup[t][Fold(acr)] = canonical
	}
	for _, s := range synonyms {
		if f := Fold(s); f != "" {
			d.lookup[t][f] = canonical
		}
	}
	d.synonyms[t][canonical] = append(d.synonyms[t][canonical], synonyms...)
}

// Lookup returns the canonical name for a surface form.
func (d *Dictionary) Lookup(t records.EntityType, surface string) (string, bool) {
	canonical, ok := d.lookup[t][Fold(surface)]
	return canonical, ok
}

// Synonyms returns the known surface forms of a canonical name.
func (d *Dictionary) Synonyms(t records.EntityType, canonical string) []string {
	return d.synonyms[t][canonical]
}

// Term is one dictionary entry.
type Term struct {
	Canonical string
	Forms     []string // canonical first, then synonyms
}

// Terms returns every entry of label t, sorted by canonical name.
func (d *Dictionary) Terms(t records.EntityType) []Term {
	var out []Term
	for canonical, syns := range d.synonyms[t] {
		forms := append([]string{canonical}, syns...)
		out = append(out, Term{Canonical: canonical, Forms: forms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

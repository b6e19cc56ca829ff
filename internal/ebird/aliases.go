package ebird

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed species.yaml
var defaultAliases []byte

// Alias maps one eBird species code onto a canonical species.
type Alias struct {
	Code   string `yaml:"code"`
	Slug   string `yaml:"slug"`
	Name   string `yaml:"name"`
	Hybrid string `yaml:"hybrid"`
}

// Aliases is keyed by eBird species code.
type Aliases map[string]Alias

// LoadAliases parses an alias table. Entries without a display name take the
// name of another entry for the same slug, falling back to the title-cased
// slug.
func LoadAliases(raw []byte) (Aliases, error) {
	var entries []Alias
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, eris.Wrap(err, "parse species aliases")
	}

	names := make(map[string]string)
	for _, a := range entries {
		if a.Code == "" || a.Slug == "" {
			return nil, eris.Errorf("species alias %q: code and slug are required", a.Code)
		}
		if a.Name != "" {
			names[a.Slug] = a.Name
		}
	}

	aliases := make(Aliases, len(entries))
	for _, a := range entries {
		if a.Name == "" {
			a.Name = names[a.Slug]
		}
		if a.Name == "" {
			a.Name = DisplayName(a.Slug)
		}
		aliases[strings.ToLower(a.Code)] = a
	}
	return aliases, nil
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() Aliases {
	a, err := LoadAliases(defaultAliases)
	if err != nil {
		panic(err)
	}
	return a
}

// Lookup finds the canonical species for an eBird code.
func (a Aliases) Lookup(code string) (Alias, bool) {
	alias, ok := a[strings.ToLower(strings.TrimSpace(code))]
	return alias, ok
}

// DisplayName turns a slug like "ring-necked-duck" into "Ring Necked Duck".
func DisplayName(slug string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
}

package messages

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Catalog maps message keys to templates with {name} placeholders.
type Catalog struct {
	templates map[string]string
}

// Default returns the built-in English catalog.
func Default() *Catalog {
	c, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("messages: built-in catalog: %v", err))
	}
	return c
}

func Parse(raw []byte) (*Catalog, error) {
	m := map[string]string{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &Catalog{templates: m}, nil
}

// Load reads a catalog file layered over the defaults, so a partial translation still
// renders every key.
func Load(path string) (*Catalog, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	over, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for k, v := range over.templates {
		c.templates[k] = v
	}
	return c, nil
}

// Render fills a template. Unknown keys render as the key itself; unknown placeholders are
// left in place.
func (c *Catalog) Render(key string, subs map[string]string) string {
	tmpl, ok := c.templates[key]
	if !ok {
		return key
	}
	if len(subs) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(subs)*2)
	for k, v := range subs {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.templates[key]
	return ok
}

func (c *Catalog) Keys() []string {
	out := make([]string, 0, len(c.templates))
	for k := range c.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

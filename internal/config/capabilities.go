package config

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

//go:embed capabilities.toml
var capabilitiesTOML []byte

// Layer is a set of gn args and preprocessor defines applied as a unit.
type Layer struct {
	Args    map[string]any `toml:"args"`
	Defines []string       `toml:"defines"`
}

// Capability is one named optional feature of Skia.
type Capability struct {
	Name        string         `toml:"-"`
	Description string         `toml:"description"`
	Requires    []string       `toml:"requires"`
	Conflicts   []string       `toml:"conflicts"`
	Platform    string         `toml:"platform"`
	GPU         bool           `toml:"gpu"`
	Args        map[string]any `toml:"args"`
	Defines     []string       `toml:"defines"`
}

// Layer returns the args and defines this capability contributes.
func (c *Capability) Layer() Layer {
	return Layer{Args: c.Args, Defines: c.Defines}
}

// AvailableOn evaluates the platform predicate. An empty predicate matches
// every target.
func (c *Capability) AvailableOn(env ConfigEnv) (bool, error) {
	if c.Platform == "" {
		return true, nil
	}
	program, err := expr.Compile(c.Platform, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("capability %q: invalid platform predicate: %w", c.Name, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("capability %q: platform predicate failed: %w", c.Name, err)
	}
	return result.(bool), nil
}

type Deprecation struct {
	Replacement []string `toml:"replacement"`
	Message     string   `toml:"message"`
}

// CapabilityTable holds the fixed rule table every build is checked against.
type CapabilityTable struct {
	Base         Layer                  `toml:"base"`
	GPU          Layer                  `toml:"gpu"`
	Capabilities map[string]*Capability `toml:"capability"`
	Deprecated   map[string]Deprecation `toml:"deprecated"`
}

// Lookup returns the capability with the given canonical name.
func (t *CapabilityTable) Lookup(name string) (*Capability, bool) {
	c, ok := t.Capabilities[name]
	return c, ok
}

// Names returns every canonical capability name, sorted.
func (t *CapabilityTable) Names() []string {
	names := make([]string, 0, len(t.Capabilities))
	for name := range t.Capabilities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Aliases returns the deprecated names that map onto name.
func (t *CapabilityTable) Aliases(name string) []string {
	var aliases []string
	for alias, dep := range t.Deprecated {
		if slices.Contains(dep.Replacement, name) {
			aliases = append(aliases, alias)
		}
	}
	slices.Sort(aliases)
	return aliases
}

// ParseCapabilityTable decodes and sanity-checks a capability table.
func ParseCapabilityTable(data []byte) (*CapabilityTable, error) {
	var table CapabilityTable
	if err := toml.Unmarshal(data, &table); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, fmt.Errorf("capability table: %s", derr.String())
		}
		return nil, fmt.Errorf("capability table: %w", err)
	}

	var bad []string
	for name, c := range table.Capabilities {
		c.Name = name
		for _, ref := range slices.Concat(c.Requires, c.Conflicts) {
			if _, ok := table.Capabilities[ref]; !ok {
				bad = append(bad, fmt.Sprintf("%s references unknown capability %q", name, ref))
			}
		}
	}
	for alias, dep := range table.Deprecated {
		if _, ok := table.Capabilities[alias]; ok {
			bad = append(bad, fmt.Sprintf("deprecated name %q shadows a capability", alias))
		}
		for _, ref := range dep.Replacement {
			if _, ok := table.Capabilities[ref]; !ok {
				bad = append(bad, fmt.Sprintf("deprecated name %q maps to unknown capability %q", alias, ref))
			}
		}
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		return nil, fmt.Errorf("capability table: %s", strings.Join(bad, "; "))
	}
	return &table, nil
}

var builtinTable = sync.OnceValue(func() *CapabilityTable {
	table, err := ParseCapabilityTable(capabilitiesTOML)
	if err != nil {
		panic(err)
	}
	return table
})

// Capabilities returns the built-in Skia capability table.
func Capabilities() *CapabilityTable {
	return builtinTable()
}

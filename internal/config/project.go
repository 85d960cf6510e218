package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

const ProjectFilename = "Skia.toml"

var defaultProfiles = map[string]ProfileSection{
	"release": {
		Official: true,
	},
	"debug": {
		Debug: true,
	},
}

// Project is the optional Skia.toml file next to the embedding project.
type Project struct {
	Package  PackageSection            `toml:"package"`
	Features FeaturesSection           `toml:"features"`
	Profile  map[string]ProfileSection `toml:"profile"`
	Gn       GnSection                 `toml:"gn"`
}

func (p Project) Profiles() []string {
	profiles := make([]string, 0, len(p.Profile))
	for k := range p.Profile {
		profiles = append(profiles, k)
	}
	slices.Sort(profiles)
	return profiles
}

// PackageSection defines the [package] section
type PackageSection struct {
	DefaultFeatures []string `toml:"default-features"`
	Target          string   `toml:"target"`
}

// FeaturesSection defines the [features(.*)] section
type FeaturesSection struct {
	Enable  []string `toml:"enable"`
	Disable []string `toml:"disable"`
}

// ProfileSection defines the [profile.*] section
type ProfileSection struct {
	Debug    bool `toml:"debug"`
	Official bool `toml:"official"`
}

// GnSection defines the [gn(.*)] section. Args here override synthesized
// ones but are still subject to capability validation.
type GnSection struct {
	Args    map[string]any `toml:"args"`
	Defines []string       `toml:"defines"`
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() == reflect.Pointer && dstVal.Elem().Kind() == reflect.Map {
		// [profile.'expr'] tables merge whole entries
		srcVal := reflect.Indirect(reflect.ValueOf(src))
		if srcVal.Kind() != reflect.Map || srcVal.Type() != dstVal.Elem().Type() {
			return fmt.Errorf("dst and src must be of the same map type")
		}
		if dstVal.Elem().IsNil() {
			dstVal.Elem().Set(reflect.MakeMap(srcVal.Type()))
		}
		for _, key := range srcVal.MapKeys() {
			dstVal.Elem().SetMapIndex(key, srcVal.MapIndex(key))
		}
		return nil
	}
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(raw map[string]any, name string, dst any) error {
	if data, ok := raw[name]; ok {
		if err := toml.Unmarshal([]byte(mustMarshal(data)), dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalSection parses a section whose sub-tables may be keyed
// by expressions; those sub-tables are merged in when their expression is true
func unmarshalConditionalSection[T any](raw map[string]any, name string, dst *T, env ConfigEnv) error {
	sectionData, ok := raw[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			_, err := expr.Compile(key, expr.Env(env))
			if err == nil {
				conditionalFields[key] = subMap
			} else {
				baseFields[key] = val
			}
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := toml.Unmarshal([]byte(mustMarshal(baseFields)), dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	// map iteration order must not leak into the merged result
	expressions := make([]string, 0, len(conditionalFields))
	for expression := range conditionalFields {
		expressions = append(expressions, expression)
	}
	slices.Sort(expressions)

	for _, expression := range expressions {
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return fmt.Errorf("failed to compile expression for [%s.%q]: %w", name, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("failed to run expression for [%s.%q]: %w", name, expression, err)
		}

		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		var condSection T
		if err := toml.Unmarshal([]byte(mustMarshal(conditionalFields[expression])), &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, m := range matches {
		builder.WriteString(s[lastIndex:m[0]])

		expression := strings.TrimSpace(s[m[2]:m[3]])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		fmt.Fprintf(&builder, "%v", result)
		lastIndex = m[1]
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// ParseProject reads a Skia.toml document. Conditional sections are
// evaluated against env.
func ParseProject(rdr io.Reader, env ConfigEnv) (*Project, error) {
	var raw map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&raw); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	processed, err := processExpressions(raw, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in %s: %w", ProjectFilename, err)
	}
	raw = processed.(map[string]any)

	p := new(Project)

	if err := unmarshalSection(raw, "package", &p.Package); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(raw, "features", &p.Features, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(raw, "profile", &p.Profile, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(raw, "gn", &p.Gn, env); err != nil {
		return nil, err
	}

	if p.Profile == nil {
		p.Profile = make(map[string]ProfileSection, len(defaultProfiles))
	}
	for name, prof := range defaultProfiles {
		if _, ok := p.Profile[name]; !ok {
			p.Profile[name] = prof
		}
	}

	return p, nil
}

// LoadProject parses path, returning the default project when it does not exist.
func LoadProject(path string, env ConfigEnv) (*Project, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultProject(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParseProject(bufio.NewReader(f), env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func DefaultProject() *Project {
	p := &Project{Profile: make(map[string]ProfileSection, len(defaultProfiles))}
	for name, prof := range defaultProfiles {
		p.Profile[name] = prof
	}
	return p
}

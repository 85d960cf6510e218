package binaries

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatKV   Format = "kv"
	FormatCgo  Format = "cgo"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted --emit values.
func Formats() []string {
	return []string{string(FormatKV), string(FormatCgo), string(FormatJSON), string(FormatYAML)}
}

// CgoFilename is the file `--emit cgo` writes into the target package.
const CgoFilename = "zz_skia_cgo.go"

// EmitOptions tune the cgo format.
type EmitOptions struct {
	CgoPackage string
}

// Emit writes c to w in the given format.
func (c *Configuration) Emit(w io.Writer, format Format, opts EmitOptions) error {
	switch format {
	case FormatKV, "":
		return c.emitKV(w)
	case FormatCgo:
		return c.emitCgo(w, opts.CgoPackage)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown emit format %q, must be one of: %s", format, strings.Join(Formats(), ", "))
	}
}

// emitKV writes one `skia:<key>=<value>` directive per line, the shape build
// scripts of other ecosystems consume.
func (c *Configuration) emitKV(w io.Writer) error {
	var sb strings.Builder
	directive := func(key, value string) {
		sb.WriteString("skia:")
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(value)
		sb.WriteByte('\n')
	}

	directive("binaries-key", c.Key)
	for _, dir := range c.SearchPaths {
		directive("link-search", "native="+dir)
	}
	for _, lib := range c.StaticLibs {
		directive("link-lib", "static="+lib)
	}
	for _, lib := range c.DynamicLibs {
		directive("link-lib", "dylib="+lib)
	}
	for _, fw := range c.Frameworks {
		directive("link-lib", "framework="+fw)
	}
	for _, dir := range c.IncludeDirs {
		directive("include", dir)
	}
	for _, d := range c.Defines {
		directive("define", d)
	}
	for _, warning := range c.Warnings {
		directive("warning", warning)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// cgoQuote quotes an argument for a #cgo directive when it contains spaces.
func cgoQuote(s string) string {
	if !strings.ContainsAny(s, " \t'\"") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func (c *Configuration) emitCgo(w io.Writer, pkg string) error {
	if pkg == "" {
		pkg = "skia"
	}

	var cflags []string
	for _, dir := range c.IncludeDirs {
		cflags = append(cflags, cgoQuote("-I"+dir))
	}
	for _, d := range c.Defines {
		cflags = append(cflags, cgoQuote("-D"+d))
	}

	var ldflags []string
	for _, dir := range c.SearchPaths {
		ldflags = append(ldflags, cgoQuote("-L"+dir))
	}
	for _, lib := range c.StaticLibs {
		ldflags = append(ldflags, "-l"+lib)
	}
	for _, lib := range c.DynamicLibs {
		ldflags = append(ldflags, "-l"+lib)
	}
	for _, fw := range c.Frameworks {
		ldflags = append(ldflags, "-framework", fw)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "// Code generated by skiabuild for %s (key %s); DO NOT EDIT.\n\n", c.Target, c.Key)
	fmt.Fprintf(&sb, "package %s\n\n", pkg)
	sb.WriteString("/*\n")
	if len(cflags) > 0 {
		fmt.Fprintf(&sb, "#cgo CFLAGS: %s\n", strings.Join(cflags, " "))
		fmt.Fprintf(&sb, "#cgo CXXFLAGS: %s\n", strings.Join(cflags, " "))
	}
	if len(ldflags) > 0 {
		fmt.Fprintf(&sb, "#cgo LDFLAGS: %s\n", strings.Join(ldflags, " "))
	}
	sb.WriteString("*/\n")
	sb.WriteString("import \"C\"\n")
	for _, warning := range c.Warnings {
		fmt.Fprintf(&sb, "\n// warning: %s\n", warning)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

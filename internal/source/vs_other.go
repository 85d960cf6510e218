//go:build !windows

package source

// Visual Studio can only be queried on Windows; cross builds rely on an
// explicit win_vc in Skia.toml.
func findVisualStudioVC() string { return "" }

//go:build windows

package source

import (
	"os"
	"path/filepath"

	"github.com/heaths/go-vssetup"
)

// findVisualStudioVC returns the VC directory of the first Visual Studio
// instance that has one, for gn's win_vc argument.
func findVisualStudioVC() string {
	instances, err := vssetup.Instances(false)
	if err != nil {
		return ""
	}
	for _, instance := range instances {
		path, err := instance.InstallationPath()
		if err != nil || path == "" {
			continue
		}
		vc := filepath.Join(path, "VC")
		if stat, err := os.Stat(vc); err == nil && stat.IsDir() {
			return vc
		}
	}
	return ""
}

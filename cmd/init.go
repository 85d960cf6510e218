// skiabuild init [dir]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Fprintf(msg.Output, "%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	} else {
		msg.Warn("%s already exists, leaving it alone", filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "skiabuild"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

const starterProject = `# Capabilities: ` + "`skiabuild features`" + ` lists them all.
[package]
default-features = ["textlayout"]

[features]
enable = ["svg"]

[features.'target_os == "macos" || target_os == "ios"']
enable = ["metal"]

[features.'target_os == "windows"']
enable = ["d3d"]

[features.'target_os == "linux" || target_os == "android"']
enable = ["gl", "vulkan"]

[profile.release]
official = true

[profile.debug]
debug = true
official = false

[gn]
# passed to gn after the synthesized arguments
args = {}
defines = []
`

// initIn writes a starter Skia.toml into dir
func initIn(dir string) {
	mkdir(dir)
	writefile(starterProject, dir, config.ProjectFilename)

	// .gitignore
	writefile(`build/
skia/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Fprintf(msg.Output, "You can now do %s to get Skia, then %s to build it.\n",
		color.HiCyanString(programName+" fetch -C "+dir), color.HiCyanString(programName+" "+dir))
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a starter " + config.ProjectFilename,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(workDir(args))
	},
}

func init() {
	// skiabuild init subcommand
	rootCmd.AddCommand(initCmd)
}

// skiabuild pack [dir]
package cmd

import (
	"os"
	"path/filepath"

	"github.com/qobs-build/skiabuild/internal/binaries"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/executor"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/qobs-build/skiabuild/internal/pipeline"
	"github.com/spf13/cobra"
)

var flagPackOutput string

func doPack(cmd *cobra.Command, args []string) {
	logger := msg.LoggerFromEnv("skiabuild")
	plan, err := pipeline.New(logger).DryRun(config.EnvironFromOS(), buildOptions(workDir(args)))
	if err != nil {
		msg.Fatal("%v", err)
	}
	fcfg := plan.Final

	// refuse to pack an incomplete build
	c, err := binaries.Collect(executor.Success{OutputDir: fcfg.OutDir}, fcfg, plan.Args.Defines)
	if err != nil {
		msg.Fatal("%v", err)
	}

	files := make([]string, len(c.StaticLibs))
	for i, lib := range c.StaticLibs {
		files[i] = fcfg.Target.StaticLib(lib)
	}

	path := filepath.Join(flagPackOutput, binaries.ArchiveName(c.Key))
	f, err := os.Create(path)
	if err != nil {
		msg.Fatal("%v", err)
	}
	defer f.Close()

	msg.Stage("Packing", "%d libraries from %s", len(files), filepath.ToSlash(fcfg.OutDir))
	if err := binaries.Pack(f, fcfg.OutDir, files); err != nil {
		os.Remove(path)
		msg.Fatal("packing %s: %v", path, err)
	}
	msg.Info("wrote %s; serve it where %s points to reuse it", filepath.ToSlash(path), config.EnvBinariesURL)
}

var packCmd = &cobra.Command{
	Use:   "pack [dir]",
	Short: "Pack a finished build into a prebuilt binaries archive",
	Args:  cobra.MaximumNArgs(1),
	Run:   doPack,
}

func init() {
	// skiabuild pack subcommand
	rootCmd.AddCommand(packCmd)
	addBuildFlags(packCmd)
	packCmd.Flags().StringVar(&flagPackOutput, "archive-dir", ".", "Directory to write the archive into")
}

// skiabuild [dir], skiabuild build [dir]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/skiabuild/internal/binaries"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/qobs-build/skiabuild/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	flagFeatures          []string
	flagNoDefaultFeatures bool
	flagProfile           string
	flagTarget            string
	flagOut               string
	flagOfflineSource     string
	flagGn                string
	flagNinja             string
	flagCgoDir            string
	flagCgoPackage        string
	flagEmit              EnumValue = NewEnumValue(string(binaries.FormatKV), map[string]string{
		string(binaries.FormatKV):   "skia:<key>=<value> lines on stdout (default)",
		string(binaries.FormatCgo):  "Write " + binaries.CgoFilename + " with #cgo directives",
		string(binaries.FormatJSON): "JSON document on stdout",
		string(binaries.FormatYAML): "YAML document on stdout",
	})
)

// workDir returns the directory a command operates on.
func workDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func buildOptions(dir string) config.Options {
	return config.Options{
		WorkDir:           dir,
		Target:            flagTarget,
		Profile:           flagProfile,
		Features:          flagFeatures,
		NoDefaultFeatures: flagNoDefaultFeatures,
		OutDir:            flagOut,
		OfflineSourceDir:  flagOfflineSource,
		GnCommand:         flagGn,
		NinjaCommand:      flagNinja,
	}
}

func doBuild(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := msg.LoggerFromEnv("skiabuild")
	c, err := pipeline.Run(ctx, config.EnvironFromOS(), buildOptions(workDir(args)), logger)
	if err != nil {
		msg.Fatal("%v", err)
	}

	if err := emit(c); err != nil {
		msg.Fatal("%v", err)
	}
	msg.Stage("Finished", "skia for %s [%s]", c.Target, c.Key)
}

func emit(c *binaries.Configuration) error {
	format := binaries.Format(flagEmit.Value())
	opts := binaries.EmitOptions{CgoPackage: flagCgoPackage}
	if format != binaries.FormatCgo {
		return c.Emit(os.Stdout, format, opts)
	}

	dir := flagCgoDir
	if dir == "" {
		dir = "."
	}
	if opts.CgoPackage == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		opts.CgoPackage = filepath.Base(abs)
	}
	path := filepath.Join(dir, binaries.CgoFilename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.Emit(f, format, opts); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(msg.Output, "%s file: %s\n", color.HiGreenString("Wrote"), filepath.ToSlash(path))
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "skiabuild [dir]",
	Short: "Configure and build Skia for a target",
	Long: `Configure and build Skia for a target, then print the link metadata
needed to consume the produced static libraries.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [dir]",
	Short: "Build Skia and emit link metadata",
	Long:  `Build Skia and emit link metadata. If no directory is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)
	addEmitFlags(rootCmd)

	// skiabuild build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
	addEmitFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&flagFeatures, "features", "F", nil, "Capabilities to enable, comma separated")
	cmd.RegisterFlagCompletionFunc("features", completeCapabilities(config.Capabilities().Names()))
	cmd.Flags().BoolVar(&flagNoDefaultFeatures, "no-default-features", false, "Ignore the default features from "+config.ProjectFilename)
	cmd.Flags().StringVarP(&flagProfile, "profile", "p", "", "Build with the given profile (default release)")
	cmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Target triple (default host)")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output directory")
	cmd.Flags().StringVar(&flagOfflineSource, "offline-source", "", "Use this Skia source tree instead of the managed checkout")
	cmd.Flags().StringVar(&flagGn, "gn", "", "Path to the gn executable")
	cmd.Flags().StringVar(&flagNinja, "ninja", "", "Path to the ninja executable")
}

func addEmitFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&flagEmit, "emit", "e", "Link metadata format, one of "+flagEmit.HelpString())
	cmd.RegisterFlagCompletionFunc("emit", flagEmit.CompletionFunc())
	cmd.Flags().StringVar(&flagCgoDir, "cgo-dir", "", "Directory to write "+binaries.CgoFilename+" into (--emit cgo)")
	cmd.Flags().StringVar(&flagCgoPackage, "cgo-package", "", "Package name for "+binaries.CgoFilename+" (default: directory name)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// skiabuild args [dir]
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/qobs-build/skiabuild/internal/pipeline"
	"github.com/spf13/cobra"
)

var flagFlat bool

func doArgs(cmd *cobra.Command, args []string) {
	logger := msg.LoggerFromEnv("skiabuild")
	plan, err := pipeline.New(logger).DryRun(config.EnvironFromOS(), buildOptions(workDir(args)))
	if err != nil {
		msg.Fatal("%v", err)
	}

	fcfg := plan.Final
	for _, w := range fcfg.Warnings {
		msg.Warn("%s", w)
	}

	if flagFlat {
		fmt.Println(plan.Args.Flatten())
		return
	}

	fmt.Fprintf(msg.Output, "%s %s (%s, %s source)\n", color.HiCyanString("target"), fcfg.Target, fcfg.Profile.Name, fcfg.Mode)
	fmt.Fprintf(msg.Output, "%s %s\n", color.HiCyanString("capabilities"), fcfg.Capabilities)
	fmt.Fprintf(msg.Output, "%s %s\n", color.HiCyanString("key"), fcfg.Key())
	fmt.Fprintf(msg.Output, "%s %s\n", color.HiCyanString("output"), fcfg.OutDir)
	for _, tool := range plan.Tools.Missing() {
		msg.Warn("%s not found, a build would fail", tool)
	}

	fmt.Fprint(os.Stdout, plan.Args.ArgsGn())
}

var argsCmd = &cobra.Command{
	Use:   "args [dir]",
	Short: "Print the gn arguments a build would use",
	Long: `Resolve the configuration, check it against the capability rules and print
the resulting gn arguments in args.gn syntax. Nothing is generated or compiled.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doArgs,
}

func init() {
	// skiabuild args subcommand
	rootCmd.AddCommand(argsCmd)
	addBuildFlags(argsCmd)
	argsCmd.Flags().BoolVar(&flagFlat, "flat", false, "Print the single-line form passed to gn gen --args")
}

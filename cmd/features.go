// skiabuild features
package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/platform"
	"github.com/spf13/cobra"
)

var flagFeaturesTarget string

func doFeatures(cmd *cobra.Command, args []string) error {
	table := config.Capabilities()

	var target *platform.Target
	if flagFeaturesTarget != "" {
		t, err := platform.Parse(flagFeaturesTarget)
		if err != nil {
			return err
		}
		target = &t
	}

	for _, name := range table.Names() {
		c, _ := table.Lookup(name)

		if target != nil {
			ok, err := c.AvailableOn(config.NewConfigEnv(*target, nil, nil))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}

		fmt.Printf("%s  %s\n", color.HiGreenString("%-22s", name), c.Description)
		if len(c.Requires) > 0 {
			fmt.Printf("%24srequires %s\n", "", strings.Join(c.Requires, ", "))
		}
		if len(c.Conflicts) > 0 {
			fmt.Printf("%24sconflicts with %s\n", "", strings.Join(c.Conflicts, ", "))
		}
		if c.Platform != "" {
			fmt.Printf("%24sonly when %s\n", "", color.HiBlackString(c.Platform))
		}
		if aliases := table.Aliases(name); len(aliases) > 0 {
			fmt.Printf("%24sformerly %s\n", "", strings.Join(aliases, ", "))
		}
	}
	return nil
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List the capabilities Skia can be built with",
	Args:  cobra.NoArgs,
	RunE:  doFeatures,
}

func init() {
	// skiabuild features subcommand
	rootCmd.AddCommand(featuresCmd)
	featuresCmd.Flags().StringVarP(&flagFeaturesTarget, "target", "t", "", "Only list capabilities available for this target")
}

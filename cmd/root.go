package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvr",
	Short: "Distance-vector routing node",
	Long: `dvr runs one router of a static topology. Routers exchange their distance vectors over UDP every
interval, and recompute shortest paths with Bellman-Ford. A neighbour that misses 3 advertisements in a row is
taken down.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "dvr",
		Title: "Router Commands",
	})
	rootCmd.PersistentFlags().StringP("topology", "t", "", "topology file")
	rootCmd.PersistentFlags().StringP("config", "c", "", "optional node config (yaml)")
	rootCmd.PersistentFlags().Uint16("id", 0, "id of this router, found from local addresses if omitted")
}

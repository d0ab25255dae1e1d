package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var resolveSelf bool

// verifyCmd checks a topology file without starting a router
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Parses and validates a topology file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		topo, err := loadTopology(cfg)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		self := state.NoHop
		if resolveSelf || cfg.Id != state.NoHop {
			self, err = state.ResolveSelf(topo, cfg.Id)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "Server ID\tAddress\t")
		for _, n := range topo.Nodes {
			mark := ""
			if n.Id == self {
				mark = "(self)"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", n.Id, n.Addr, mark)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "From\tTo\tCost")
		for _, l := range topo.Links {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", l.From, l.To, l.Cost)
		}
		err = tw.Flush()
		if err != nil {
			return err
		}

		if self != state.NoHop {
			_, skipped, err := state.LoadRouterState(topo, self)
			if err != nil {
				return err
			}
			for _, l := range skipped {
				fmt.Fprintf(out, "note: link %d-%d does not involve server %d and is ignored by it\n", l.From, l.To, self)
			}
		}
		fmt.Fprintln(out, "Topology is valid")
		return nil
	},
	GroupID: "dvr",
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVarP(&resolveSelf, "self", "s", false, "also identify this host in the topology")
}

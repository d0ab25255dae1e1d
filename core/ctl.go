package core

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/encodeous/dvr/state"
)

type ctlCommand struct {
	args  int
	usage string
	run   func(r *DvRouter, args []string) (string, error)
}

var ctlCommands = map[string]ctlCommand{
	"update":  {args: 3, usage: "update <server-id1> <server-id2> <cost|inf>", run: ctlUpdate},
	"step":    {args: 0, usage: "step", run: ctlStep},
	"packets": {args: 0, usage: "packets", run: ctlPackets},
	"display": {args: 0, usage: "display", run: ctlDisplay},
	"disable": {args: 1, usage: "disable <server-id>", run: ctlDisable},
	"crash":   {args: 0, usage: "crash", run: ctlCrash},
}

// RunCommand executes one control line and returns the text to print. A rejected command changes
// nothing and is answered with "<command>: <reason>".
func RunCommand(s *state.State, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	verb := strings.ToLower(fields[0])
	cmd, ok := ctlCommands[verb]
	if !ok {
		return fmt.Sprintf("Invalid command %s\n", fields[0])
	}
	args := fields[1:]
	if len(args) != cmd.args {
		return fmt.Sprintf("%s: usage: %s\n", verb, cmd.usage)
	}
	body, err := cmd.run(Get[*DvRouter](s), args)
	if err != nil {
		s.Log.Debug("command rejected", "command", verb, "reason", err)
		return fmt.Sprintf("%s: %s\n", verb, err)
	}
	return body + verb + " SUCCESS\n"
}

// lookupServer parses an id that must exist in the topology
func lookupServer(r *DvRouter, arg string) (*state.Node, error) {
	id, err := state.ParseNodeId(arg)
	if err != nil {
		return nil, fmt.Errorf("Server %s is invalid", arg)
	}
	n := r.GetNode(id)
	if n == nil {
		return nil, fmt.Errorf("Server %s is invalid", arg)
	}
	return n, nil
}

func ctlUpdate(r *DvRouter, args []string) (string, error) {
	cost, err := state.ParseCost(args[2])
	if err != nil {
		return "", fmt.Errorf("Invalid cost %s, must be between 0 and %d or inf", args[2], state.INFM)
	}
	a, err := lookupServer(r, args[0])
	if err != nil {
		return "", err
	}
	b, err := lookupServer(r, args[1])
	if err != nil {
		return "", err
	}
	if a.Id != r.Id && b.Id != r.Id {
		return "", fmt.Errorf("You can only change link cost of neighbors")
	}
	if a.Id == b.Id {
		return "", fmt.Errorf("Self links are always 0. You cannot modify self links")
	}
	neigh := a
	if a.Id == r.Id {
		neigh = b
	}
	if !neigh.IsNeighbour {
		return "", fmt.Errorf("Server %d is not a neighbor", neigh.Id)
	}
	return "", r.UpdateLink(a.Id, b.Id, cost)
}

func ctlStep(r *DvRouter, args []string) (string, error) {
	r.Broadcast()
	return "", nil
}

func ctlPackets(r *DvRouter, args []string) (string, error) {
	return fmt.Sprintf("Number of packets received %d\n", r.TakeReceived()), nil
}

func ctlDisplay(r *DvRouter, args []string) (string, error) {
	sb := strings.Builder{}
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Server ID\tCost\tNext Hop")
	for _, e := range r.RouteTable() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Id, e.Cost, e.NextHop)
	}
	err := tw.Flush()
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func ctlDisable(r *DvRouter, args []string) (string, error) {
	n, err := lookupServer(r, args[0])
	if err != nil {
		return "", err
	}
	if !n.IsNeighbour {
		return "", fmt.Errorf("Server %d is not a neighbor", n.Id)
	}
	return "", r.DisableNeighbour(n.Id)
}

func ctlCrash(r *DvRouter, args []string) (string, error) {
	r.Env.Log.Info("crash requested, shutting down")
	r.Cancel(state.ErrCrash)
	return "", nil
}

package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"code.hybscloud.com/ipc/node"
)

func newCmdNodes() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List node markers and their liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := node.List(rootPath)
			if err != nil {
				return err
			}

			w := tablewriter.NewWriter(os.Stdout)
			w.SetHeader([]string{"id", "name", "pid", "state"})
			for _, info := range infos {
				w.Append([]string{info.ID.String(), info.Name, fmt.Sprint(info.PID), info.State.String()})
			}
			w.Render()
			return nil
		},
	}
	return cmd
}

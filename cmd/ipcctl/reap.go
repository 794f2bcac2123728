package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/reaper"
	"code.hybscloud.com/ipc/status"
)

func newCmdReap() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap <node-id>",
		Short: "Reclaim a dead node's dynamic-configuration slots and stale services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := node.ParseID(args[0])
			if err != nil {
				return status.New("ipcctl.reap", status.KindContractViolation, err)
			}

			rep, err := reaper.Run(rootPath, prefix, id)
			if err != nil {
				return err
			}

			fmt.Printf("services scanned:  %d\n", rep.ServicesScanned)
			fmt.Printf("slots released:    %d\n", rep.SlotsReleased)
			fmt.Printf("services unlinked: %d\n", len(rep.ServicesUnlinked))
			for _, name := range rep.ServicesUnlinked {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Printf("node marker removed: %t\n", rep.MarkerRemoved)
			return nil
		},
	}
	return cmd
}

package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"code.hybscloud.com/ipc/registry"
)

func newCmdList() *cobra.Command {
	var includeInternal bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List services in the configured scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Open(rootPath, prefix)
			if err != nil {
				return err
			}
			cfgs, err := reg.List(registry.ListFilter{IncludeInternal: includeInternal})
			if err != nil {
				return err
			}

			w := tablewriter.NewWriter(os.Stdout)
			w.SetHeader([]string{"name", "pattern", "id"})
			for _, cfg := range cfgs {
				id := registry.RecomputeServiceID(cfg)
				w.Append([]string{cfg.Name, cfg.Pattern.String(), id.String()})
			}
			w.SetFooter([]string{"", "", strconv.Itoa(len(cfgs))})
			w.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeInternal, "all", false, "include internal services")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/registry"
	"code.hybscloud.com/ipc/status"
)

func findByName(reg *registry.Registry, name string) (registry.StaticConfig, error) {
	cfgs, err := reg.List(registry.ListFilter{IncludeInternal: true})
	if err != nil {
		return registry.StaticConfig{}, err
	}
	for _, cfg := range cfgs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return registry.StaticConfig{}, status.New("ipcctl.details", status.KindDoesNotExist)
}

func newCmdDetails() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details <service>",
		Short: "Print a service's static and dynamic configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Open(rootPath, prefix)
			if err != nil {
				return err
			}
			cfg, err := findByName(reg, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("name:          %s\n", cfg.Name)
			fmt.Printf("pattern:       %s\n", cfg.Pattern)
			fmt.Printf("id:            %s\n", registry.RecomputeServiceID(cfg))
			fmt.Printf("config-prefix: %s\n", cfg.ConfigPrefix)
			fmt.Printf("created (mono ns): %d\n", cfg.CreatedAtUnixNano)
			printLimits(cfg.Limits)

			h, err := reg.Open(registry.Request{
				Name:       cfg.Name,
				Pattern:    cfg.Pattern,
				Types:      registry.TypesOf(cfg),
				Limits:     cfg.Limits,
				Capacities: registry.CapacitiesOf(cfg),
			})
			if err != nil {
				return err
			}
			defer h.Dyn.Close()
			printDynamic(h)
			return nil
		},
	}
	return cmd
}

func printLimits(l registry.Limits) {
	fmt.Println("limits:")
	fmt.Printf("  max-publishers:  %d\n", l.MaxPublishers)
	fmt.Printf("  max-subscribers: %d\n", l.MaxSubscribers)
	fmt.Printf("  max-notifiers:   %d\n", l.MaxNotifiers)
	fmt.Printf("  max-listeners:   %d\n", l.MaxListeners)
	fmt.Printf("  max-clients:     %d\n", l.MaxClients)
	fmt.Printf("  max-servers:     %d\n", l.MaxServers)
}

var kindNames = [portset.NumKinds]string{"publisher", "subscriber", "notifier", "listener", "client", "server"}

func printDynamic(h *registry.Handle) {
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"port kind", "active", "capacity"})
	for k := portset.Kind(0); int(k) < portset.NumKinds; k++ {
		table := h.Dyn.Table(k)
		if table == nil {
			continue
		}
		active := 0
		table.ForEachActive(func(dynconfig.Entry) { active++ })
		w.Append([]string{kindNames[k], fmt.Sprint(active), fmt.Sprint(table.Capacity())})
	}
	w.Render()
}

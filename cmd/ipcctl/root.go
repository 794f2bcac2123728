package main

import (
	"github.com/spf13/cobra"

	"code.hybscloud.com/ipc/config"
)

var (
	rootPath string
	prefix   string
)

// newRootCmd wires up ipcctl's subcommands, seeding --root/--prefix
// from the process's config.Load() (spec.md §6's global.root-path and
// global.prefix) so a plain "ipcctl list" targets whatever root path
// and prefix the runtime it is inspecting was actually started with.
func newRootCmd() *cobra.Command {
	cfg, _ := config.Load()
	rootPath = cfg.Global.RootPath
	prefix = cfg.Global.Prefix

	cmd := &cobra.Command{
		Use:   "ipcctl",
		Short: "Inspect and reap an ipc runtime's persistent state",
	}
	cmd.PersistentFlags().StringVar(&rootPath, "root", rootPath, "persistent state root directory")
	cmd.PersistentFlags().StringVar(&prefix, "prefix", prefix, "configuration namespace prefix")

	cmd.AddCommand(newCmdList())
	cmd.AddCommand(newCmdDetails())
	cmd.AddCommand(newCmdNodes())
	cmd.AddCommand(newCmdReap())
	return cmd
}

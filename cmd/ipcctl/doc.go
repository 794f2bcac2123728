// Command ipcctl is the inspection and reaping tool for an ipc
// runtime's persistent state (spec.md §6): list registered services,
// print one service's static and dynamic configuration, list node
// markers by liveness, and drive the reaper against a dead node.
package main

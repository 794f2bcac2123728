package main

import "code.hybscloud.com/ipc/status"

// exitCode maps a command's returned error to the process exit code
// spec.md §6 defines: 0 success, 1 user error, 2 not found, 3
// permission denied, 4 corrupted state, 5 version mismatch.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case status.Is(err, status.KindDoesNotExist), status.Is(err, status.KindIsMarkedForDestruction):
		return 2
	case status.Is(err, status.KindInsufficientPermissions):
		return 3
	case status.Is(err, status.KindServiceInCorruptedState):
		return 4
	case status.Is(err, status.KindVersionMismatch):
		return 5
	default:
		return 1
	}
}

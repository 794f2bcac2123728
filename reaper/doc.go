// Package reaper implements the dead-node cleanup pass from spec.md
// §4.10 (C10): given a node id classified node.Dead, it reopens every
// service in the registry, force-releases every dynamic-configuration
// slot that node owned (unlinking whatever shared-memory resource the
// slot's payload named, and firing the event plane's "notifier dead"
// lifecycle event where configured), unlinks a service's dynamic-
// configuration segment and static-config file (the lock file is left
// in place) once every slot across every port kind has gone Empty, and
// finally removes the node's own marker file — last, per spec.md
// §4.10's stated step ordering ("reap the node marker last").
package reaper

// Package portset wires internal/shm (C1) and internal/dynconfig (C5)
// together into the single shared-memory segment a service's dynamic
// configuration occupies: one dynconfig.Table per port kind the
// service's messaging pattern uses, all packed into one segment so a
// single OpenOrCreate/map covers every port kind at once (spec.md §4.1
// "Control flow: ... C1+C5 map resources").
package portset

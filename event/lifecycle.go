package event

// lifecycleUnset marks a disabled lifecycle event slot in the
// registry-persisted [created, dropped, dead] encoding.
const lifecycleUnset = ^uint32(0)

// EncodeLifecycleIDs flattens ids into the three-element
// [created, dropped, dead] form registry.Limits.LifecycleEventIDs
// persists to the static-config file, so any later opener (including
// the reaper, which never called Open itself) can reconstruct
// the same LifecycleEventIDs this service was created with. A nil
// pointer becomes lifecycleUnset.
func EncodeLifecycleIDs(ids LifecycleEventIDs) []uint32 {
	put := func(id *uint32) uint32 {
		if id == nil {
			return lifecycleUnset
		}
		return *id
	}
	return []uint32{put(ids.Created), put(ids.Dropped), put(ids.Dead)}
}

// DecodeLifecycleIDs is EncodeLifecycleIDs' inverse. A slice shorter
// than 3 elements (including nil, for a service created before
// lifecycle events existed) decodes every missing slot as disabled.
func DecodeLifecycleIDs(ids []uint32) LifecycleEventIDs {
	get := func(i int) *uint32 {
		if i >= len(ids) || ids[i] == lifecycleUnset {
			return nil
		}
		v := ids[i]
		return &v
	}
	return LifecycleEventIDs{Created: get(0), Dropped: get(1), Dead: get(2)}
}

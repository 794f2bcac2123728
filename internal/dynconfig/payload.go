package dynconfig

// EncodeName writes name, NUL-terminated, into a PayloadSize buffer
// suitable for Acquire's payload argument. Every port kind in this
// runtime except Notifier stores at least one shared-memory object name
// this way (publisher data segment, subscriber/client/server queue,
// listener bitset segment) so the reaper (C10) can locate and unlink a
// crashed port's resources without needing to reconstruct the owning
// package's full port type. A Notifier slot carries its node's name
// instead, which the reaper does not unlink.
func EncodeName(name string) []byte {
	buf := make([]byte, PayloadSize)
	n := copy(buf, name)
	if n < PayloadSize {
		buf[n] = 0
	}
	return buf
}

// DecodeName reads a NUL-terminated name back out of a slot payload as
// returned by Table.ForEachActive or Entry.Payload.
func DecodeName(payload []byte) string {
	for i, b := range payload {
		if b == 0 {
			return string(payload[:i])
		}
	}
	return string(payload)
}

// EncodeNames writes multiple NUL-separated names into a PayloadSize
// buffer, for port kinds that own more than one shared-memory resource
// (reqres's Client and Server each advertise both a data segment and a
// queue).
func EncodeNames(names ...string) []byte {
	buf := make([]byte, PayloadSize)
	pos := 0
	for _, name := range names {
		pos += copy(buf[pos:], name)
		if pos < PayloadSize {
			buf[pos] = 0
			pos++
		}
	}
	return buf
}

// DecodeNames reads back n NUL-separated names written by EncodeNames.
func DecodeNames(payload []byte, n int) []string {
	names := make([]string, 0, n)
	pos := 0
	for i := 0; i < n && pos <= len(payload); i++ {
		start := pos
		for pos < len(payload) && payload[pos] != 0 {
			pos++
		}
		names = append(names, string(payload[start:pos]))
		pos++
	}
	return names
}

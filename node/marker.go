package node

import (
	"encoding/binary"
	"fmt"
)

// markerNameSize bounds the node-name field persisted in a marker file.
const markerNameSize = 64

// marker is the fixed-layout content written into a node's marker file
// once its lock is held (spec.md §4.6): the node's own id plus the
// liveness token (pid, monotonic start time) other participants
// compare against /proc/<pid>/stat to classify the node.
type marker struct {
	ID        ID
	PID       uint32
	StartTime uint64
	Name      [markerNameSize]byte
}

func encodeMarker(m marker) []byte {
	buf := make([]byte, 16+4+8+markerNameSize)
	copy(buf[0:16], m.ID[:])
	binary.BigEndian.PutUint32(buf[16:20], m.PID)
	binary.BigEndian.PutUint64(buf[20:28], m.StartTime)
	copy(buf[28:], m.Name[:])
	return buf
}

func decodeMarker(buf []byte) (marker, error) {
	const want = 16 + 4 + 8 + markerNameSize
	if len(buf) < want {
		return marker{}, fmt.Errorf("node: marker file too short (%d < %d)", len(buf), want)
	}
	var m marker
	copy(m.ID[:], buf[0:16])
	m.PID = binary.BigEndian.Uint32(buf[16:20])
	m.StartTime = binary.BigEndian.Uint64(buf[20:28])
	copy(m.Name[:], buf[28:want])
	return m, nil
}

func (m marker) name() string {
	for i, b := range m.Name {
		if b == 0 {
			return string(m.Name[:i])
		}
	}
	return string(m.Name[:])
}

package archive

import (
	"encoding/binary"

	"github.com/Voskan/resourcecore/pkg/rpath"
)

// LiveUpdateHeaderSize is the fixed 16-byte live-update wrapper header: a
// u32 size, a u8 flags byte, and 11 bytes of padding.
const LiveUpdateHeaderSize = 4 + 1 + 11

// UnwrapLiveUpdate splits a live-update payload (the only form a mutable
// archive's write path accepts) into its declared size, flags, and the
// unwrapped resource bytes.
func UnwrapLiveUpdate(buf []byte) (size uint32, flags uint32, payload []byte, err error) {
	if len(buf) < LiveUpdateHeaderSize {
		return 0, 0, nil, rpath.Errf(rpath.FormatError, "archive.UnwrapLiveUpdate", "", nil)
	}
	size = binary.BigEndian.Uint32(buf[0:4])
	flags = uint32(buf[4])
	payload = buf[LiveUpdateHeaderSize:]
	if uint32(len(payload)) < size {
		return 0, 0, nil, rpath.Errf(rpath.FormatError, "archive.UnwrapLiveUpdate", "", nil)
	}
	return size, flags, payload[:size], nil
}

// WrapLiveUpdate builds a live-update payload from raw resource bytes and
// flags, the inverse of UnwrapLiveUpdate — used by tests and by callers
// simulating a download.
func WrapLiveUpdate(payload []byte, flags uint32) []byte {
	buf := make([]byte, LiveUpdateHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	buf[4] = byte(flags)
	copy(buf[LiveUpdateHeaderSize:], payload)
	return buf
}

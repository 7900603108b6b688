package guest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Globals scratch offsets.
const (
	globalLiveFlag = 0
	globalMarker   = 8
	globalsSize    = 16
)

var (
	imageMarker = [8]byte{'j', 's', 'h', 'o', 's', 't', 0, 1}
	heapMagic   = [8]byte{'J', 'S', 'H', 'E', 'A', 'P', '0', '1'}
	stackCanary = [8]byte{0xde, 0xad, 0xc0, 0xde, 0x57, 0xac, 0x4b, 0x00}
)

const heapHeaderSize = 16

// heapPrepared returns true when the heap region already has a buffer header.
func heapPrepared(heap []byte) bool {
	return len(heap) >= heapHeaderSize && bytes.Equal(heap[:8], heapMagic[:])
}

// prepareHeap writes the buffer header at the start of the heap region.
func prepareHeap(heap []byte) error {
	if len(heap) <= heapHeaderSize {
		return fmt.Errorf("heap region of %d bytes too small", len(heap))
	}
	copy(heap, heapMagic[:])
	binary.LittleEndian.PutUint64(heap[8:], uint64(len(heap)-heapHeaderSize))
	return nil
}

func heapCapacity(heap []byte) uint64 {
	return binary.LittleEndian.Uint64(heap[8:heapHeaderSize])
}

// stageScript copies the script and a NUL terminator into the heap buffer and
// returns the script as the interpreter sees it, up to the first NUL.
func stageScript(heap []byte, code string) (string, error) {
	capacity := heapCapacity(heap)
	if uint64(len(code))+1 > capacity {
		return "", fmt.Errorf("script of %d bytes exceeds heap buffer of %d bytes", len(code), capacity)
	}

	buf := heap[heapHeaderSize:]
	n := copy(buf, code)
	buf[n] = 0

	end := bytes.IndexByte(buf[:n+1], 0)
	return string(buf[:end]), nil
}

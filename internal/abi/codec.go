package abi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FrameHeaderSize is the size of the length prefix of every frame.
const FrameHeaderSize = 4

var (
	// ErrFrameTooLarge is returned when a frame doesn't fit in its buffer.
	ErrFrameTooLarge = errors.New("frame too large for buffer")
	// ErrMalformedFrame is returned when a buffer doesn't hold a valid frame.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrInvalidString is returned when a string value is not valid UTF-8.
	ErrInvalidString = errors.New("string is not valid UTF-8")
)

// validator is implemented by the frames that carry values.
type validator interface {
	validate() error
}

// Core deterministic encoding, the same call always produces the same bytes so
// guest memory stays reproducible across identical boots.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("abi: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1024,
	}.DecMode()
	if err != nil {
		panic("abi: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// WriteFrame encodes v as a length prefixed frame at the start of buf and
// returns the number of bytes used.
func WriteFrame(buf []byte, v any) (int, error) {
	// The decoder rejects invalid strings, catch them before they cross.
	if vl, ok := v.(validator); ok {
		if err := vl.validate(); err != nil {
			return 0, fmt.Errorf("could not encode frame: %w", err)
		}
	}

	data, err := Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("could not encode frame: %w", err)
	}

	n := FrameHeaderSize + len(data)
	if n > len(buf) {
		return 0, fmt.Errorf("frame of %d bytes, buffer of %d bytes: %w", n, len(buf), ErrFrameTooLarge)
	}

	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[FrameHeaderSize:], data)

	return n, nil
}

// ReadFrame decodes the frame at the start of buf into v.
func ReadFrame(buf []byte, v any) error {
	if len(buf) < FrameHeaderSize {
		return fmt.Errorf("buffer smaller than frame header: %w", ErrMalformedFrame)
	}

	size := int(binary.LittleEndian.Uint32(buf))
	if size == 0 || size > len(buf)-FrameHeaderSize {
		return fmt.Errorf("invalid frame size %d: %w", size, ErrMalformedFrame)
	}

	if err := Unmarshal(buf[FrameHeaderSize:FrameHeaderSize+size], v); err != nil {
		return fmt.Errorf("could not decode frame: %w: %w", ErrMalformedFrame, err)
	}

	return nil
}

// ClearFrame zeroes the frame at the start of buf.
func ClearFrame(buf []byte) {
	if len(buf) < FrameHeaderSize {
		return
	}
	size := int(binary.LittleEndian.Uint32(buf))
	end := FrameHeaderSize + size
	if end > len(buf) {
		end = len(buf)
	}
	clear(buf[:end])
}

package rc

import (
	"encoding/binary"
	"errors"
)

// iBus frame: length, command, 14 little-endian channels, checksum.
const (
	FrameSize   = 32
	NumChannels = 14

	ibusLength  = 0x20
	ibusCommand = 0x40
)

var ErrChecksum = errors.New("ibus checksum mismatch")

// Channels are raw channel values, nominally 1000 to 2000.
type Channels [NumChannels]uint16

type decodeState int

const (
	waitLength decodeState = iota
	waitCommand
	readPayload
)

// Decoder is the iBus receive state machine. Feed it one byte at a time.
type Decoder struct {
	state decodeState
	buf   [FrameSize]byte
	n     int

	frames, errors uint64
}

// Feed consumes b and returns the channels when b completes a valid frame.
// A frame with a bad checksum is dropped and the decoder resyncs on the
// next length byte.
func (d *Decoder) Feed(b byte) (Channels, bool, error) {
	switch d.state {
	case waitLength:
		if b == ibusLength {
			d.buf[0] = b
			d.n = 1
			d.state = waitCommand
		}
	case waitCommand:
		if b != ibusCommand {
			d.state = waitLength
			// a length byte may start the real frame
			return d.Feed(b)
		}
		d.buf[1] = b
		d.n = 2
		d.state = readPayload
	case readPayload:
		d.buf[d.n] = b
		d.n++
		if d.n < FrameSize {
			break
		}
		d.state = waitLength

		ch, err := decodeFrame(d.buf)
		if err != nil {
			d.errors++
			return Channels{}, false, err
		}
		d.frames++
		return ch, true, nil
	}

	return Channels{}, false, nil
}

// Frames returns the number of valid frames decoded.
func (d *Decoder) Frames() uint64 {
	return d.frames
}

// Errors returns the number of frames dropped on checksum.
func (d *Decoder) Errors() uint64 {
	return d.errors
}

func decodeFrame(buf [FrameSize]byte) (Channels, error) {
	want := binary.LittleEndian.Uint16(buf[FrameSize-2:])
	if checksum(buf[:FrameSize-2]) != want {
		return Channels{}, ErrChecksum
	}

	var ch Channels
	for i := range ch {
		ch[i] = binary.LittleEndian.Uint16(buf[2+2*i:])
	}
	return ch, nil
}

// Encode builds the frame carrying ch.
func Encode(ch Channels) [FrameSize]byte {
	var buf [FrameSize]byte
	buf[0], buf[1] = ibusLength, ibusCommand
	for i, v := range ch {
		binary.LittleEndian.PutUint16(buf[2+2*i:], v)
	}
	binary.LittleEndian.PutUint16(buf[FrameSize-2:], checksum(buf[:FrameSize-2]))
	return buf
}

func checksum(b []byte) uint16 {
	sum := uint16(0xFFFF)
	for _, v := range b {
		sum -= uint16(v)
	}
	return sum
}

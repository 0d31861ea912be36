package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0xA17B1700
	Version        uint8  = 1
	FixedHeaderLen        = 14
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrShortPayload       = errors.New("frame: short payload")
	ErrTrailingBytes      = errors.New("frame: trailing bytes")
)

// Header is the fixed wire header preceding the payload.
type Header struct {
	Magic      uint32
	Version    uint8
	Seq        uint8
	Ack        uint8
	Checksum   uint32
	PayloadLen uint16
}

// EncodeFrame renders f as one datagram. Seq, ack and checksum are written
// as carried; a corrupt frame stays corrupt on the wire.
func EncodeFrame(f Frame, limits Limits) ([]byte, error) {
	if len(f.Payload) > limits.MaxPayloadBytes || len(f.Payload) > 0xFFFF {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, FixedHeaderLen+len(f.Payload))
	putHeader(buf, Header{
		Magic:      Magic,
		Version:    Version,
		Seq:        uint8(f.Seq),
		Ack:        uint8(f.Ack),
		Checksum:   f.Checksum,
		PayloadLen: uint16(len(f.Payload)),
	})
	copy(buf[FixedHeaderLen:], f.Payload)
	return buf, nil
}

// DecodeFrame parses exactly one datagram. Out-of-range bit values are kept so
// that Corrupt reports them.
func DecodeFrame(b []byte, limits Limits) (Frame, error) {
	if len(b) < FixedHeaderLen {
		return Frame{}, ErrShortHeader
	}
	h, err := DecodeHeader(b[:FixedHeaderLen])
	if err != nil {
		return Frame{}, err
	}
	if int(h.PayloadLen) > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	rest := b[FixedHeaderLen:]
	if len(rest) < int(h.PayloadLen) {
		return Frame{}, ErrShortPayload
	}
	if len(rest) > int(h.PayloadLen) {
		return Frame{}, ErrTrailingBytes
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, rest)
	return h.frame(payload), nil
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if int(h.PayloadLen) > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return Frame{}, ErrShortPayload
			}
			return Frame{}, err
		}
	}
	return h.frame(payload), nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	b, err := EncodeFrame(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    b[4],
		Seq:        b[5],
		Ack:        b[6],
		Checksum:   binary.BigEndian.Uint32(b[8:12]),
		PayloadLen: binary.BigEndian.Uint16(b[12:14]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Seq
	buf[6] = h.Ack
	buf[7] = 0
	binary.BigEndian.PutUint32(buf[8:12], h.Checksum)
	binary.BigEndian.PutUint16(buf[12:14], h.PayloadLen)
}

func (h Header) frame(payload []byte) Frame {
	return Frame{
		Seq:      Bit(h.Seq),
		Ack:      Bit(h.Ack),
		Checksum: h.Checksum,
		Payload:  payload,
	}
}

package ads

import (
	"encoding/binary"
	"fmt"
)

// tcpPreludeSize is the AMS/TCP prelude: 2 reserved bytes + 4-byte LE length.
const tcpPreludeSize = 6

// amsHeaderSize is the fixed AMS header that follows the prelude.
const amsHeaderSize = 32

// amsHeader is the 32-byte envelope carried by every ADS command.
type amsHeader struct {
	TargetNetId AmsNetId
	TargetPort  uint16
	SourceNetId AmsNetId
	SourcePort  uint16
	CommandId   Command
	StateFlags  uint16
	DataLength  uint32
	ErrorCode   uint32
	InvokeId    uint32
}

// MarshalBinary encodes the header in its 32-byte wire form.
func (h amsHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, amsHeaderSize)
	copy(buf[0:6], h.TargetNetId[:])
	binary.LittleEndian.PutUint16(buf[6:8], h.TargetPort)
	copy(buf[8:14], h.SourceNetId[:])
	binary.LittleEndian.PutUint16(buf[14:16], h.SourcePort)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(h.CommandId))
	binary.LittleEndian.PutUint16(buf[18:20], h.StateFlags)
	binary.LittleEndian.PutUint32(buf[20:24], h.DataLength)
	binary.LittleEndian.PutUint32(buf[24:28], h.ErrorCode)
	binary.LittleEndian.PutUint32(buf[28:32], h.InvokeId)
	return buf, nil
}

// UnmarshalBinary decodes a 32-byte AMS header.
func (h *amsHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < amsHeaderSize {
		return fmt.Errorf("%w: ams header needs %d bytes, got %d", ErrFrameTooShort, amsHeaderSize, len(buf))
	}
	copy(h.TargetNetId[:], buf[0:6])
	h.TargetPort = binary.LittleEndian.Uint16(buf[6:8])
	copy(h.SourceNetId[:], buf[8:14])
	h.SourcePort = binary.LittleEndian.Uint16(buf[14:16])
	h.CommandId = Command(binary.LittleEndian.Uint16(buf[16:18]))
	h.StateFlags = binary.LittleEndian.Uint16(buf[18:20])
	h.DataLength = binary.LittleEndian.Uint32(buf[20:24])
	h.ErrorCode = binary.LittleEndian.Uint32(buf[24:28])
	h.InvokeId = binary.LittleEndian.Uint32(buf[28:32])
	return nil
}

// IsResponse reports whether the state flags mark this header as a response.
func (h amsHeader) IsResponse() bool {
	return h.StateFlags&0x0001 != 0
}

// Packet is a fully decoded AMS frame: its header plus command-specific data.
// Data is the raw ADS data region following the header; the frame codec
// strips nothing from it. Responses begin with a 4-byte result code
// (Read/ReadWrite responses then carry a 4-byte length), and a
// DeviceNotification begins with a 4-byte length; those fields are consumed
// by the connection, client and notification layers that interpret the
// command.
type Packet struct {
	Header amsHeader
	Data   []byte
}

// decodeFrames consumes whole AMS/TCP frames from buf and returns the
// undecoded remainder plus every packet found. A buffer holding less than the
// whole declared frame is left in remaining for the next read; a declared AMS
// length below amsHeaderSize returns ErrFrameTooShort. decodeFrames never
// blocks and never allocates beyond the slices it hands back.
func decodeFrames(buf []byte) (remaining []byte, packets []Packet, err error) {
	for {
		if len(buf) < tcpPreludeSize {
			return buf, packets, nil
		}
		declaredLen := binary.LittleEndian.Uint32(buf[2:6])
		if declaredLen < amsHeaderSize {
			return nil, packets, fmt.Errorf("%w: declared AMS length %d below header size", ErrFrameTooShort, declaredLen)
		}
		total := tcpPreludeSize + int(declaredLen)
		if len(buf) < total {
			return buf, packets, nil
		}

		amsBuf := buf[tcpPreludeSize:total]
		var hdr amsHeader
		if err := hdr.UnmarshalBinary(amsBuf); err != nil {
			return nil, packets, err
		}
		if !knownCommand(hdr.CommandId) {
			return nil, packets, fmt.Errorf("%w: 0x%04X", ErrUnknownCommand, uint16(hdr.CommandId))
		}

		data := amsBuf[amsHeaderSize:]
		packets = append(packets, Packet{Header: hdr, Data: data})
		buf = buf[total:]
	}
}

func knownCommand(c Command) bool {
	switch c {
	case CmdReadDeviceInfo, CmdRead, CmdWrite, CmdReadState, CmdWriteControl,
		CmdAddDeviceNotify, CmdDeleteDeviceNotify, CmdDeviceNotification, CmdReadWrite:
		return true
	default:
		return false
	}
}

// encodeFrame serializes a request: AMS/TCP prelude + header + payload.
func encodeFrame(hdr amsHeader, payload []byte) ([]byte, error) {
	hdr.DataLength = uint32(len(payload))
	hdrBytes, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, tcpPreludeSize+amsHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(amsHeaderSize+len(payload)))
	copy(buf[tcpPreludeSize:], hdrBytes)
	copy(buf[tcpPreludeSize+amsHeaderSize:], payload)
	return buf, nil
}

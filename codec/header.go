package codec

import "encoding/binary"

const HeaderLen = 12

type QR uint8

const (
	QRRequest QR = iota
	QRResponse
)

func (q QR) String() string {
	if q == QRRequest {
		return "request"
	}
	return "response"
}

type Opcode uint8

func (o Opcode) String() string {
	switch o {
	case 0:
		return "standard query"
	case 1:
		return "inverse query"
	case 2:
		return "status"
	default:
		return "reserved"
	}
}

type Rcode uint8

var rcodeText = [...]string{
	0: "no error",
	1: "format error",
	2: "server failure",
	3: "name error",
	4: "not implemented",
	5: "refused",
}

func (r Rcode) String() string {
	if int(r) < len(rcodeText) {
		return rcodeText[r]
	}
	return "reserved"
}

type Header struct {
	ID      uint16
	QR      QR
	Opcode  Opcode
	Rcode   Rcode
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// ParseHeader reads the fixed 12 byte header, all fields big endian.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, formatErr(len(b), "header needs %d bytes, got %d", HeaderLen, len(b))
	}

	return Header{
		ID:      binary.BigEndian.Uint16(b[0:]),
		QR:      QR(b[2] >> 7),
		Opcode:  Opcode((b[2] >> 3) & 0x0f),
		Rcode:   Rcode(b[3] & 0x0f),
		QDCount: binary.BigEndian.Uint16(b[4:]),
		ANCount: binary.BigEndian.Uint16(b[6:]),
		NSCount: binary.BigEndian.Uint16(b[8:]),
		ARCount: binary.BigEndian.Uint16(b[10:]),
	}, nil
}

package codec

import (
	"encoding/binary"
	"net/netip"
)

const (
	typeA     = 1
	typeCNAME = 5
	typeAAAA  = 28

	// type, class, ttl, rdlength following the 2 byte owner pointer
	rrFixedLen = 10
)

type AnswerKind uint8

const (
	// AnswerAddress is a decoded A or AAAA record.
	AnswerAddress AnswerKind = iota
	// AnswerCNAME marks a CNAME record, the chain is not followed.
	AnswerCNAME
	// AnswerUnsupported marks a record type that is not decoded.
	AnswerUnsupported
	// AnswerUncompressed marks an owner name that is not a pointer.
	AnswerUncompressed
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerAddress:
		return "address"
	case AnswerCNAME:
		return "CNAME"
	case AnswerUnsupported:
		return "unknown type"
	default:
		return "not pointer"
	}
}

type Answer struct {
	Kind AnswerKind
	Name string
	Type uint16
	TTL  uint32
	Data string
}

func (a Answer) String() string {
	if a.Kind == AnswerAddress {
		return a.Data
	}
	return a.Kind.String()
}

// ParseAnswers decodes the answer section on a best effort basis. Only
// owner names compressed into a single pointer are understood, and only A
// and AAAA records are decoded. The first CNAME, unknown type or plain owner
// name is appended as a marker and ends decoding. Answers decoded before an
// error are returned with it.
func ParseAnswers(b []byte, qdcount, ancount uint16) ([]Answer, error) {
	_, off, err := ParseQuestions(b, qdcount)
	if err != nil {
		return nil, err
	}

	var answers = make([]Answer, 0, min(int(ancount), maxPrealloc))
	for i := 0; i < int(ancount); i++ {
		if off+2 > len(b) {
			return answers, formatErr(off, "answer %d truncated before owner name", i)
		}
		if b[off]&pointerMask != pointerMask {
			answers = append(answers, Answer{Kind: AnswerUncompressed})
			return answers, nil
		}

		ptr := int(binary.BigEndian.Uint16(b[off:]) & 0x3fff)
		if ptr >= off {
			return answers, formatErr(off, "pointer %d does not point backwards", ptr)
		}
		name, _, err := readName(b, ptr)
		if err != nil {
			return answers, err
		}

		fixed := off + 2
		if fixed+rrFixedLen > len(b) {
			return answers, formatErr(fixed, "answer %d truncated in fixed fields", i)
		}
		rrType := binary.BigEndian.Uint16(b[fixed:])
		ttl := binary.BigEndian.Uint32(b[fixed+4:])
		rdlength := int(binary.BigEndian.Uint16(b[fixed+8:]))
		rdata := fixed + rrFixedLen

		switch rrType {
		case typeA, typeAAAA:
			if rdata+rdlength > len(b) {
				return answers, formatErr(rdata, "rdata of %d bytes runs past end of message", rdlength)
			}
			addr, ok := netip.AddrFromSlice(b[rdata : rdata+rdlength])
			if !ok || (rrType == typeA) != addr.Is4() {
				return answers, formatErr(rdata, "rdlength %d does not fit record type %d", rdlength, rrType)
			}
			answers = append(answers, Answer{Kind: AnswerAddress, Name: name, Type: rrType, TTL: ttl, Data: addr.String()})
			off = rdata + rdlength
		case typeCNAME:
			answers = append(answers, Answer{Kind: AnswerCNAME, Name: name, Type: rrType, TTL: ttl})
			return answers, nil
		default:
			answers = append(answers, Answer{Kind: AnswerUnsupported, Name: name, Type: rrType, TTL: ttl})
			return answers, nil
		}
	}

	return answers, nil
}

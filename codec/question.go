package codec

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

const (
	pointerMask = 0xc0
	maxNameLen  = 255

	// counts come from the wire, do not trust them for allocation
	maxPrealloc = 8
)

type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// TypeString returns the mnemonic of the question type, TYPE<n> when unknown.
func (q Question) TypeString() string {
	if s, ok := dns.TypeToString[q.Type]; ok {
		return s
	}
	return "TYPE" + strconv.Itoa(int(q.Type))
}

func (q Question) String() string {
	return q.Name + " (" + q.TypeString() + ")"
}

// ParseQuestions decodes qdcount questions starting right after the header
// and returns them with the offset of the first byte past the section.
func ParseQuestions(b []byte, qdcount uint16) ([]Question, int, error) {
	var questions = make([]Question, 0, min(int(qdcount), maxPrealloc))
	off := HeaderLen
	if len(b) < off {
		return questions, off, formatErr(len(b), "message shorter than header")
	}

	for i := 0; i < int(qdcount); i++ {
		name, next, err := readName(b, off)
		if err != nil {
			return questions, off, err
		}
		if next+4 > len(b) {
			return questions, off, formatErr(next, "question %d truncated before qtype/qclass", i)
		}
		questions = append(questions, Question{
			Name:  name,
			Type:  binary.BigEndian.Uint16(b[next:]),
			Class: binary.BigEndian.Uint16(b[next+2:]),
		})
		off = next + 4
	}

	return questions, off, nil
}

// readName decodes an uncompressed name at off and returns the offset past
// its terminating zero label.
func readName(b []byte, off int) (string, int, error) {
	var sb strings.Builder
	start := off
	for {
		if off >= len(b) {
			return "", off, formatErr(off, "name runs past end of message")
		}
		l := int(b[off])
		if l == 0 {
			off++
			break
		}
		if l&pointerMask != 0 {
			return "", off, formatErr(off, "compressed label 0x%02x where a plain label is required", l)
		}
		off++
		if off+l > len(b) {
			return "", off, formatErr(off, "label of %d bytes runs past end of message", l)
		}
		if off+l-start > maxNameLen {
			return "", off, formatErr(start, "name longer than %d bytes", maxNameLen)
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.Write(b[off : off+l])
		off += l
	}

	if sb.Len() == 0 {
		return ".", off, nil
	}
	return sb.String(), off, nil
}

// Fingerprint returns the question section bytes of a query, the part of
// the message that identifies what is asked regardless of transaction ID
// and flags. The returned slice aliases b.
func Fingerprint(b []byte) ([]byte, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if h.QDCount == 0 {
		return nil, formatErr(4, "query without question")
	}

	_, end, err := ParseQuestions(b, h.QDCount)
	if err != nil {
		return nil, err
	}

	return b[HeaderLen:end], nil
}

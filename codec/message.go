package codec

import (
	"fmt"
	"strings"
)

// Message is a decoded view of a datagram, built for diagnostics only.
type Message struct {
	Header
	Questions []Question
	Answers   []Answer
}

// Decode parses header and questions strictly and answers best effort.
// On error the partially decoded message is still returned.
func Decode(b []byte) (*Message, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: h}
	if m.Questions, _, err = ParseQuestions(b, h.QDCount); err != nil {
		return m, err
	}

	if h.ANCount == 0 {
		return m, nil
	}

	m.Answers, err = ParseAnswers(b, h.QDCount, h.ANCount)
	return m, err
}

// QuestionString renders the questions as "{ name (type) ... }".
func (m *Message) QuestionString() string {
	var sb strings.Builder
	sb.WriteString("{ ")
	for _, q := range m.Questions {
		sb.WriteString(q.String())
		sb.WriteByte(' ')
	}
	sb.WriteByte('}')
	return sb.String()
}

func (m *Message) AnswerStrings() []string {
	var s = make([]string, 0, len(m.Answers))
	for _, a := range m.Answers {
		s = append(s, a.String())
	}
	return s
}

// Hex dumps b as space separated lowercase byte pairs.
func Hex(b []byte) string {
	return fmt.Sprintf("% x", b)
}

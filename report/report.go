// Package report renders decoded DNS messages into log lines. It only
// describes traffic, nothing it does changes what is forwarded.
package report

import (
	"go.uber.org/zap"

	"github.com/treemana/dnstun/codec"
	"github.com/treemana/dnstun/log"
)

type Reporter struct {
	enabled bool
	dump    bool
}

// New returns a reporter, a disabled one drops everything. dump adds the
// raw bytes as hex at debug level.
func New(enabled, dump bool) *Reporter {
	return &Reporter{enabled: enabled, dump: dump}
}

func (r *Reporter) Report(direction string, sn uint64, b []byte) {
	if r == nil || !r.enabled {
		return
	}

	m, err := codec.Decode(b)
	if m == nil {
		log.Logger.Debug(direction, log.SN(sn), zap.Int("bytes", len(b)), zap.NamedError("decode", err))
		return
	}

	fields := []zap.Field{
		log.SN(sn),
		zap.Uint16("id", m.ID),
		zap.Stringer("opcode", m.Opcode),
		zap.String("question", m.QuestionString()),
	}
	if m.QR == codec.QRResponse {
		fields = append(fields,
			zap.Stringer("rcode", m.Rcode),
			zap.Strings("answer", m.AnswerStrings()),
			zap.Uint16("authority", m.NSCount),
			zap.Uint16("additional", m.ARCount),
		)
	}
	if err != nil {
		fields = append(fields, zap.NamedError("decode", err))
	}
	log.Logger.Info(direction, fields...)

	if r.dump {
		log.Logger.Debug(direction, log.SN(sn), zap.String("hex", codec.Hex(b)))
	}
}

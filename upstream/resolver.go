package upstream

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/treemana/dnstun/log"
)

// Exchange sends query over a fresh session and waits for exactly one
// response. The session is bounded by the configured timeout or ctx,
// whichever ends first. There is no retry.
func (s *UpStream) Exchange(ctx context.Context, query []byte) ([]byte, error) {

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.dialer.Dial(ctx)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: s.address, Err: err}
	}
	defer func() { _ = session.Close() }()

	deadline, _ := ctx.Deadline()
	if err = session.SetDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "dial", Addr: s.address, Err: err}
	}

	start := time.Now()
	if err = session.Send(query); err != nil {
		return nil, &TransportError{Op: "send", Addr: s.address, Err: err}
	}

	var resp []byte
	if resp, err = session.Receive(); err != nil {
		return nil, &TransportError{Op: "receive", Addr: s.address, Err: err}
	}
	elapsed := time.Since(start)

	if len(query) >= 2 && len(resp) >= 2 && binary.BigEndian.Uint16(query) != binary.BigEndian.Uint16(resp) {
		return nil, &TransportError{
			Op:   "receive",
			Addr: s.address,
			Err:  fmt.Errorf("unmatched request id %d and response id %d", binary.BigEndian.Uint16(query), binary.BigEndian.Uint16(resp)),
		}
	}

	log.Sugar.Debugf("%s %s response success, cost %s", s.mode, s.address, elapsed)

	return resp, nil
}

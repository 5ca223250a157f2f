package proxy

import (
	"context"

	"github.com/treemana/dnstun/codec"
	"github.com/treemana/dnstun/log"
	"github.com/treemana/dnstun/model"
)

// forward exchanges dt.Query with the upstream resolver and caches the
// answer. On failure the query is dropped, the client gets no reply.
func (s *Server) forward(dt *model.DT) bool {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	resp, err := s.forwarder.Exchange(ctx, dt.Query)
	if err != nil {
		s.failed.Add(1)
		log.Sugar.Errorf("sn=%d, id=%d upstream error=[%+v]", dt.SN, dt.ID(), err)
		return false
	}
	s.forwarded.Add(1)

	dt.Response = resp
	s.report("response", dt.SN, resp)

	// responses without a header can not take another transaction ID
	if dt.Fingerprint != nil && len(resp) >= codec.HeaderLen {
		s.cache.Put(dt.Fingerprint, resp[2:])
	}

	return true
}

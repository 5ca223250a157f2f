package proxy

import (
	"errors"
	"net"

	"github.com/miekg/dns"

	"github.com/treemana/dnstun/cipher"
	"github.com/treemana/dnstun/codec"
	"github.com/treemana/dnstun/log"
	"github.com/treemana/dnstun/model"
)

func (s *Server) read() {
	defer s.loopWG.Done()

	bytes := make([]byte, dns.MaxMsgSize)
	var oob []byte
	if s.pktinfo {
		oob = make([]byte, oobSize)
	}
	for {
		n, oobn, _, remoteAddr, err := s.conn.ReadMsgUDP(bytes, oob)
		if !s.status.Load() {
			log.Sugar.Info("server read after stopped")
			break
		}

		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Sugar.Warn("server read connection closed")
				break
			}
			log.Sugar.Error("server read error : ", err)
			continue
		}

		if n <= 0 {
			log.Sugar.Warn("server read 0 byte")
			continue
		}

		// ReadMsgUDP overwrites bytes on the next call and the packet may
		// outlive it in a session goroutine
		packet := make([]byte, n)
		copy(packet, bytes)

		var local net.IP
		if s.pktinfo {
			local = parseDst(oob[:oobn])
		}

		s.produce(packet, remoteAddr, local, s.serial.Add(1))
	}
}

// produce runs on the read loop: it answers cache hits in place and hands
// misses to a session goroutine.
func (s *Server) produce(packet []byte, remote *net.UDPAddr, local net.IP, sn uint64) {
	s.received.Add(1)

	if s.cipher {
		cipher.Decode(packet)
	}

	dt := s.newDT(packet, remote, sn)
	dt.Local = local

	if s.lookup(dt) {
		s.write(dt)
		return
	}

	if !s.sem.TryAcquire(1) {
		s.dropped.Add(1)
		log.Sugar.Warnf("sn=%d, id=%d dropped, too many upstream requests in flight", sn, dt.ID())
		return
	}

	s.reqWG.Add(1)
	go func() {
		defer s.reqWG.Done()
		defer s.sem.Release(1)

		if s.forward(dt) {
			s.write(dt)
		}
	}()
}

func (s *Server) newDT(packet []byte, remote net.Addr, sn uint64) *model.DT {
	dt := &model.DT{
		SN:         sn,
		RemoteAddr: remote,
		Query:      packet,
	}

	s.report("query", sn, packet)

	fp, err := codec.Fingerprint(packet)
	if err != nil {
		log.Sugar.Debugf("sn=%d, id=%d not cacheable, %v", sn, dt.ID(), err)
		return dt
	}
	dt.Fingerprint = fp

	return dt
}

// lookup fills dt.Response from the cache, stamped with the query's
// transaction ID.
func (s *Server) lookup(dt *model.DT) bool {
	if dt.Fingerprint == nil {
		return false
	}

	answer, ok := s.cache.Get(dt.Fingerprint)
	if !ok {
		return false
	}

	resp := make([]byte, 2+len(answer))
	copy(resp, dt.Query[:2])
	copy(resp[2:], answer)

	dt.Response = resp
	dt.Cached = true
	s.hits.Add(1)
	s.report("cached", dt.SN, resp)

	return true
}

// report isolates the reporter, a failure there never reaches forwarding.
func (s *Server) report(direction string, sn uint64, b []byte) {
	if s.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Sugar.Errorf("sn=%d report %s panic=[%v]", sn, direction, r)
		}
	}()
	s.reporter.Report(direction, sn, b)
}

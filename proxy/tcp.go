package proxy

import (
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/treemana/dnstun/log"
)

func (s *Server) accept() {
	defer s.loopWG.Done()

	for {
		c, err := s.tcp.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.status.Load() {
				log.Sugar.Info("server tcp listener closed")
				return
			}
			log.Sugar.Error("server tcp accept error : ", err)
			continue
		}

		s.tcpMu.Lock()
		s.tcpConns[c] = struct{}{}
		s.tcpMu.Unlock()

		s.reqWG.Add(1)
		go func() {
			defer s.reqWG.Done()
			s.serveTCP(c)
		}()
	}
}

// serveTCP answers length framed queries on one client connection until
// it goes idle, errors or the server stops.
func (s *Server) serveTCP(c net.Conn) {
	conn := &dns.Conn{Conn: c}
	defer func() {
		s.tcpMu.Lock()
		delete(s.tcpConns, c)
		s.tcpMu.Unlock()
		_ = conn.Close()
	}()

	buf := make([]byte, dns.MaxMsgSize)
	for s.status.Load() {
		if err := conn.SetReadDeadline(time.Now().Add(tcpIdleTimeout)); err != nil {
			return
		}
		// Stop may have cut the deadline between the loop check and here
		if !s.status.Load() {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		s.received.Add(1)

		packet := make([]byte, n)
		copy(packet, buf)
		dt := s.newDT(packet, c.RemoteAddr(), s.serial.Add(1))

		if !s.lookup(dt) {
			if !s.sem.TryAcquire(1) {
				s.dropped.Add(1)
				log.Sugar.Warnf("sn=%d, id=%d dropped, too many upstream requests in flight", dt.SN, dt.ID())
				return
			}
			ok := s.forward(dt)
			s.sem.Release(1)
			if !ok {
				return
			}
		}

		if err = conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return
		}
		if _, err = conn.Write(dt.Response); err != nil {
			log.Sugar.Errorf("sn=%d, tcp connection write error=[%+v]", dt.SN, err)
			return
		}
		log.Sugar.Infof("sn=%d, id=%d, cache=%t, %d bytes to %s over tcp", dt.SN, dt.ID(), dt.Cached, len(dt.Response), c.RemoteAddr())
	}
}

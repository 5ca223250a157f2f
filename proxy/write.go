package proxy

import (
	"net"
	"time"

	"github.com/treemana/dnstun/cipher"
	"github.com/treemana/dnstun/log"
	"github.com/treemana/dnstun/model"
)

func (s *Server) write(dt *model.DT) {

	if dt.RemoteAddr == nil {
		log.Sugar.Debugf("sn=%d, remote addr nil", dt.SN)
		return
	}

	bytes := dt.Response
	if s.cipher {
		bytes = cipher.Encode(append([]byte(nil), bytes...))
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		log.Sugar.Errorf("sn=%d, server udp connection set deadline error=[%+v]", dt.SN, err)
		return
	}

	var err error
	if remote, ok := dt.RemoteAddr.(*net.UDPAddr); ok && dt.Local != nil {
		_, _, err = s.conn.WriteMsgUDP(bytes, oobWithSrc(dt.Local), remote)
	} else {
		_, err = s.conn.WriteTo(bytes, dt.RemoteAddr)
	}
	if err != nil {
		log.Sugar.Errorf("sn=%d, udp connection write error=[%+v]", dt.SN, err)
		// the query is lost, the client retries on its own
		return
	}

	log.Sugar.Infof("sn=%d, id=%d, cache=%t, %d bytes to %s", dt.SN, dt.ID(), dt.Cached, len(bytes), dt.RemoteAddr)
}

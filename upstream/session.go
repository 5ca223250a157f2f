package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/treemana/dnstun/cipher"
	dot "github.com/treemana/dnstun/tls"
)

// Session is one private connection to the resolver, used for a single
// query and response.
type Session interface {
	Send(b []byte) error
	Receive() ([]byte, error)
	SetDeadline(t time.Time) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

type DialFunc func(ctx context.Context) (Session, error)

func (f DialFunc) Dial(ctx context.Context) (Session, error) { return f(ctx) }

// streamSession frames messages with the two byte length prefix of
// DNS over TCP, dns.Conn does the framing for stream connections.
type streamSession struct {
	conn *dns.Conn
}

func (s *streamSession) Send(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

func (s *streamSession) Receive() ([]byte, error) {
	buf := make([]byte, dns.MaxMsgSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *streamSession) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }
func (s *streamSession) Close() error                  { return s.conn.Close() }

// packetSession carries one message per datagram on a connected socket.
type packetSession struct {
	conn net.Conn
}

func (s *packetSession) Send(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

func (s *packetSession) Receive() ([]byte, error) {
	buf := make([]byte, dns.MaxMsgSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *packetSession) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }
func (s *packetSession) Close() error                  { return s.conn.Close() }

// tunnelSession ciphers every datagram of the wrapped session.
type tunnelSession struct {
	Session
}

func (s *tunnelSession) Send(b []byte) error {
	out := make([]byte, len(b))
	copy(out, b)
	return s.Session.Send(cipher.Encode(out))
}

func (s *tunnelSession) Receive() ([]byte, error) {
	b, err := s.Session.Receive()
	if err != nil {
		return nil, err
	}
	return cipher.Decode(b), nil
}

func udpDialer(address string) Dialer {
	return DialFunc(func(ctx context.Context) (Session, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "udp", address)
		if err != nil {
			return nil, err
		}
		return &packetSession{conn: conn}, nil
	})
}

func tunnelDialer(address string) Dialer {
	udp := udpDialer(address)
	return DialFunc(func(ctx context.Context) (Session, error) {
		s, err := udp.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return &tunnelSession{Session: s}, nil
	})
}

func tcpDialer(address string) Dialer {
	return DialFunc(func(ctx context.Context) (Session, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		return &streamSession{conn: &dns.Conn{Conn: conn}}, nil
	})
}

func tlsDialer(address string, config *tls.Config) Dialer {
	return DialFunc(func(ctx context.Context) (Session, error) {
		conn, _, err := dot.NewConn(ctx, address, config)
		if err != nil {
			return nil, err
		}
		return &streamSession{conn: &dns.Conn{Conn: conn}}, nil
	})
}

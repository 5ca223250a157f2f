package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/treemana/dnstun/cache"
	"github.com/treemana/dnstun/log"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxInflight = 1024
	tcpIdleTimeout     = 10 * time.Second
)

// Forwarder performs one query/response exchange with the upstream resolver.
type Forwarder interface {
	Exchange(ctx context.Context, query []byte) ([]byte, error)
}

// Reporter describes traffic, see package report.
type Reporter interface {
	Report(direction string, sn uint64, b []byte)
}

type Config struct {
	Address string // udp listen address, host:port

	// Cipher marks inbound datagrams as tunnel traffic, they are decoded
	// on receipt and replies are encoded.
	Cipher bool

	// TCP additionally accepts DNS over TCP clients on Address.
	TCP bool

	// ReplyFromDst sends every reply from the address its query was sent
	// to, for wildcard listeners on hosts with several addresses.
	ReplyFromDst bool

	MaxInflight int           // concurrent upstream exchanges, excess queries are dropped
	Timeout     time.Duration // upstream exchange and reply write bound
}

type Stats struct {
	Received  uint64 `json:"received"`
	CacheHits uint64 `json:"cache_hits"`
	Forwarded uint64 `json:"forwarded"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Inflight  int64  `json:"inflight"`
}

type Server struct {
	conn    *net.UDPConn
	tcp     net.Listener
	cipher  bool
	pktinfo bool
	status  atomic.Bool // running status

	forwarder Forwarder
	cache     *cache.Cache
	reporter  Reporter

	sem     *semaphore.Weighted
	timeout time.Duration

	loopWG sync.WaitGroup // listener loops
	reqWG  sync.WaitGroup // spawned sessions and tcp clients

	tcpMu    sync.Mutex
	tcpConns map[net.Conn]struct{}

	serial    atomic.Uint64
	received  atomic.Uint64
	hits      atomic.Uint64
	forwarded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	inflight  atomic.Int64

	ctx      context.Context
	cancelFn context.CancelFunc
}

// New binds the listeners. A bind failure is the only error that stops the
// proxy from starting.
func New(c Config, fw Forwarder, rc *cache.Cache, rep Reporter) (*Server, error) {

	if fw == nil {
		return nil, errors.New("nil forwarder")
	}

	if rc == nil {
		return nil, errors.New("nil cache")
	}

	if c.TCP && c.Cipher {
		return nil, errors.New("tcp listener can not serve tunnel traffic")
	}

	if c.MaxInflight <= 0 {
		c.MaxInflight = defaultMaxInflight
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	s := &Server{
		cipher:    c.Cipher,
		forwarder: fw,
		cache:     rc,
		reporter:  rep,
		sem:       semaphore.NewWeighted(int64(c.MaxInflight)),
		timeout:   c.Timeout,
		tcpConns:  make(map[net.Conn]struct{}),
	}

	if err := s.setConn(c.Address); err != nil {
		return nil, fmt.Errorf("set conn error=[%w]", err)
	}

	if c.ReplyFromDst {
		if err := setControlMessage(s.conn); err != nil {
			_ = s.conn.Close()
			log.Sugar.Errorf("server udp [%s] connection set control error=[%+v]", c.Address, err)
			return nil, fmt.Errorf("set control message error=[%w]", err)
		}
		s.pktinfo = true
	}

	if c.TCP {
		if err := s.setListener(); err != nil {
			_ = s.conn.Close()
			return nil, fmt.Errorf("set tcp listener error=[%w]", err)
		}
	}

	s.ctx, s.cancelFn = context.WithCancel(context.Background())

	return s, nil
}

// Addr returns the bound udp address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// TCPAddr returns the bound tcp address, nil without tcp listener.
func (s *Server) TCPAddr() net.Addr {
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

func (s *Server) Start() {

	s.status.Store(true)

	s.loopWG.Add(1)
	go s.read()

	if s.tcp != nil {
		s.loopWG.Add(1)
		go s.accept()
	}

	log.Sugar.Infof("server running on %s, cipher=%t, tcp=%t", s.conn.LocalAddr(), s.cipher, s.tcp != nil)
}

// Stop ends the listener loops, waits for in-flight sessions to reply or
// time out, then closes the sockets.
func (s *Server) Stop() {
	log.Sugar.Info("server stopping")
	s.status.Store(false)

	// unblock ReadFromUDP, the loop sees status and returns
	_ = s.conn.SetReadDeadline(time.Now())
	if s.tcp != nil {
		_ = s.tcp.Close()
	}
	s.loopWG.Wait()
	log.Sugar.Info("server read stopped")

	s.tcpMu.Lock()
	for c := range s.tcpConns {
		_ = c.SetReadDeadline(time.Now())
	}
	s.tcpMu.Unlock()

	log.Sugar.Info("server waiting all request done")
	s.reqWG.Wait()
	s.cancelFn()

	if err := s.conn.Close(); err != nil {
		log.Sugar.Errorf("server udp connection close error=[%+v]", err)
	}
	log.Sugar.Infof("server stopped, serial=%d", s.serial.Load())
}

func (s *Server) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		CacheHits: s.hits.Load(),
		Forwarded: s.forwarded.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Inflight:  s.inflight.Load(),
	}
}

func (s *Server) setConn(address string) error {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return err
	}

	if s.conn, err = net.ListenUDP("udp", addr); err != nil {
		log.Sugar.Errorf("server udp [%s] listen error=[%+v]", address, err)
		return err
	}

	return nil
}

// setListener listens for tcp on the port the udp socket got.
func (s *Server) setListener() error {
	var err error
	if s.tcp, err = net.Listen("tcp", s.conn.LocalAddr().String()); err != nil {
		log.Sugar.Errorf("server tcp [%s] listen error=[%+v]", s.conn.LocalAddr(), err)
		return err
	}
	return nil
}

package upstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/treemana/dnstun/log"
	dot "github.com/treemana/dnstun/tls"
)

const (
	defaultTimeout = 5 * time.Second
	defaultPort    = "53"
)

type Mode string

const (
	ModeUDP    Mode = "udp"
	ModeTCP    Mode = "tcp"
	ModeTLS    Mode = "tls"
	ModeTunnel Mode = "tunnel" // udp with both directions passed through cipher
)

// ParseMode accepts the transport names used in configuration, "plain" is
// an alias of udp.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeUDP, ModeTCP, ModeTLS, ModeTunnel:
		return m, nil
	case "plain", "":
		return ModeUDP, nil
	default:
		return "", fmt.Errorf("unknown upstream mode %q", s)
	}
}

type Config struct {
	Mode    Mode
	Address string        // host:port, port 53 (853 for tls) when omitted
	Timeout time.Duration // whole exchange, dial included

	ServerName string      // tls only, defaults to the address host
	TLS        *tls.Config // tls only, overrides ServerName
}

type UpStream struct {
	mode    Mode
	address string
	timeout time.Duration
	dialer  Dialer
}

func New(c Config) (*UpStream, error) {
	if len(c.Address) == 0 {
		return nil, errors.New("empty upstream address")
	}

	mode, err := ParseMode(string(c.Mode))
	if err != nil {
		return nil, err
	}

	address := c.Address
	if _, _, err = net.SplitHostPort(address); err != nil {
		port := defaultPort
		if mode == ModeTLS {
			port = "853"
		}
		address = net.JoinHostPort(strings.Trim(address, "[]"), port)
	}

	us := &UpStream{
		mode:    mode,
		address: address,
		timeout: c.Timeout,
	}
	if us.timeout <= 0 {
		us.timeout = defaultTimeout
	}

	switch mode {
	case ModeUDP:
		us.dialer = udpDialer(address)
	case ModeTCP:
		us.dialer = tcpDialer(address)
	case ModeTunnel:
		us.dialer = tunnelDialer(address)
	case ModeTLS:
		config := c.TLS
		if config == nil {
			config = dot.Config(address, c.ServerName)
		}
		us.dialer = tlsDialer(address, config)
	}

	log.Sugar.Infof("upstream %s %s, timeout %s", mode, address, us.timeout)

	return us, nil
}

func (s *UpStream) Mode() Mode      { return s.mode }
func (s *UpStream) Address() string { return s.address }

// TransportError is a failed dial, send or receive towards the resolver.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the exchange ran out of time.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.Is(e.Err, context.DeadlineExceeded) || (errors.As(e.Err, &ne) && ne.Timeout())
}

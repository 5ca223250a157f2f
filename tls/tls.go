package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"time"
)

const (
	timeoutDial      = 3 * time.Second
	timeoutHandshake = 3 * time.Second
)

// Config returns the client configuration for a DNS-over-TLS resolver,
// serverName falls back to the host part of address.
func Config(address, serverName string) *tls.Config {
	if len(serverName) == 0 {
		if host, _, err := net.SplitHostPort(address); err == nil {
			serverName = host
		}
	}
	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}
}

// NewConn dials address over tcp and completes the handshake.
// return conn, elapse, error
func NewConn(ctx context.Context, address string, config *tls.Config) (*tls.Conn, time.Duration, error) {

	ept := time.Now() // entry point time

	// dial
	dialer := &net.Dialer{Timeout: timeoutDial}
	start := time.Now()
	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	elapse := time.Since(start)
	if err != nil {
		return nil, math.MaxInt64, fmt.Errorf("dial [%w], elapse %s", err, elapse)
	}

	conn := tls.Client(rawConn, config)

	// bound the handshake by ctx when it ends earlier
	deadline := time.Now().Add(timeoutHandshake)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, math.MaxInt64, fmt.Errorf("set deadline [%w]", err)
	}

	// handshake
	start = time.Now()
	err = conn.HandshakeContext(ctx)
	elapse = time.Since(start)
	if err != nil {
		_ = conn.Close()
		return nil, math.MaxInt64, fmt.Errorf("handshake [%w], elapse %s", err, elapse)
	}

	return conn, time.Since(ept), nil
}

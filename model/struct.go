package model

import (
	"encoding/binary"
	"net"
)

// DT follows one client query through the proxy.
type DT struct {
	// SN serial number of the query on its listener, used in log lines
	SN uint64

	// RemoteAddr the requester address
	RemoteAddr net.Addr

	// Local the address the query was sent to, only known when the
	// listener asks for control messages
	Local net.IP

	// Query plain query bytes as received, after tunnel decoding
	Query []byte

	// Fingerprint question section of Query, nil when it could not be
	// decoded and the query is forwarded without caching
	Fingerprint []byte

	Response []byte

	Cached bool // when response from the cache, true will be set
}

// ID returns the transaction ID of the query, 0 when too short.
func (dt *DT) ID() uint16 {
	if len(dt.Query) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(dt.Query)
}

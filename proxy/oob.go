package proxy

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// control message flags requesting destination address and interface
	ipv4Flags = ipv4.FlagDst | ipv4.FlagInterface
	ipv6Flags = ipv6.FlagDst | ipv6.FlagInterface
)

var oobSize = getOOBSize()

// setControlMessage asks the kernel for the destination address of every
// datagram. A dual stack socket takes both, a single stack one only its own.
func setControlMessage(conn *net.UDPConn) error {
	err4 := ipv4.NewPacketConn(conn).SetControlMessage(ipv4Flags, true)
	err6 := ipv6.NewPacketConn(conn).SetControlMessage(ipv6Flags, true)
	if err4 != nil && err6 != nil {
		return err4
	}
	return nil
}

// getOOBSize returns maximum size of the received OOB data.
func getOOBSize() int {
	l4, l6 := len(ipv4.NewControlMessage(ipv4Flags)), len(ipv6.NewControlMessage(ipv6Flags))

	if l4 >= l6 {
		return l4
	}

	return l6
}

// parseDst extracts the destination address of a datagram from its OOB
// data, nil when absent.
func parseDst(oob []byte) net.IP {
	if len(oob) == 0 {
		return nil
	}

	var cm4 ipv4.ControlMessage
	if cm4.Parse(oob) == nil && cm4.Dst != nil {
		return cm4.Dst
	}

	var cm6 ipv6.ControlMessage
	if cm6.Parse(oob) == nil && cm6.Dst != nil {
		return cm6.Dst
	}

	return nil
}

// oobWithSrc makes the OOB data with a specified source IP.
func oobWithSrc(ip net.IP) []byte {
	if ip4 := ip.To4(); ip4 != nil {
		return (&ipv4.ControlMessage{Src: ip4}).Marshal()
	}

	return (&ipv6.ControlMessage{Src: ip}).Marshal()
}

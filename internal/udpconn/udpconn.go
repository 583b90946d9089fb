// Package udpconn provides the JSON-datagram UDP transport shared by the
// commander, executor, and settlement bridge (§6, grounded on
// transport/udp.py).
package udpconn

import (
	"encoding/json"
	"net"

	"github.com/go-errors/errors"
)

// MaxDatagramSize bounds a single inbound read. Messages in this protocol
// are small capability-token-bearing JSON objects, never multi-packet.
const MaxDatagramSize = 64 * 1024

// Bind opens a UDP socket listening on addr (host:port). An empty host
// binds all interfaces.
func Bind(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Errorf("udpconn: resolving %s: %v", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Errorf("udpconn: binding %s: %v", addr, err)
	}
	return conn, nil
}

// Send JSON-encodes msg and writes it as a single datagram to addr.
func Send(conn *net.UDPConn, addr string, msg interface{}) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Errorf("udpconn: encoding message: %v", err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return errors.Errorf("udpconn: resolving %s: %v", addr, err)
	}
	if _, err := conn.WriteToUDP(raw, udpAddr); err != nil {
		return errors.Errorf("udpconn: writing to %s: %v", addr, err)
	}
	return nil
}

// Recv blocks for a single datagram and returns its raw bytes and sender
// address. The caller is responsible for sniffing message_type and
// unmarshaling into the concrete message struct.
func Recv(conn *net.UDPConn) ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, MaxDatagramSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, errors.Errorf("udpconn: reading: %v", err)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, addr, nil
}

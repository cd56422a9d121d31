// Package datapath implements the library's DatapathHandle (spec.md §3,
// §4.1 step 9): the UDP I/O surface that bindings multiplex over. A Handle
// is opaque to BindingRegistry; it only needs a canonical local address,
// a way to send, and a way to shut down.
package datapath

import (
	"net"

	"github.com/elkjaer/qcore/internal/qerr"
)

// Handle is the datapath's UDP socket abstraction (spec.md §3: "Opaque
// datapath handle"). CanonicalLocalAddr is what BindingRegistry uses for
// collision detection once an OS has assigned ports/interfaces.
type Handle interface {
	CanonicalLocalAddr() *net.UDPAddr
	WriteTo(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
}

// Receiver is the callback surface a Handle delivers inbound datagrams and
// unreachable notifications to, matching the "receive and unreachable
// callbacks that route to the binding layer" wired at init (spec.md §4.1
// step 9).
type Receiver interface {
	OnReceive(local *net.UDPAddr, remote *net.UDPAddr, data []byte)
	OnUnreachable(remote *net.UDPAddr)
}

// udpHandle is the portable Handle backed by a plain net.UDPConn. It is
// the default used everywhere the Linux io_uring backend (see
// iouring_linux.go) is unavailable or not requested.
type udpHandle struct {
	conn *net.UDPConn
}

// Open binds a UDP socket at addr (zero-port/zero-IP fields are resolved
// by the OS) and starts pumping inbound datagrams to recv, grounded in
// the teacher's control-plane read loop but specialized to a best-effort
// UDP surface instead of a ublk command ring.
func Open(addr *net.UDPAddr, recv Receiver) (Handle, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, qerr.Wrap("datapath.Open", err)
	}
	h := &udpHandle{conn: conn}
	if recv != nil {
		go h.readLoop(recv)
	}
	return h, nil
}

func (h *udpHandle) readLoop(recv Receiver) {
	buf := make([]byte, 65527)
	local := h.CanonicalLocalAddr()
	for {
		n, remote, err := h.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		recv.OnReceive(local, remote, data)
	}
}

func (h *udpHandle) CanonicalLocalAddr() *net.UDPAddr {
	return h.conn.LocalAddr().(*net.UDPAddr)
}

func (h *udpHandle) WriteTo(b []byte, addr *net.UDPAddr) (int, error) {
	n, err := h.conn.WriteToUDP(b, addr)
	if err != nil {
		return n, qerr.Wrap("datapath.WriteTo", err)
	}
	return n, nil
}

func (h *udpHandle) Close() error {
	return h.conn.Close()
}

var _ Handle = (*udpHandle)(nil)

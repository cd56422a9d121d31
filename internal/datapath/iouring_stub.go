//go:build !linux || !giouring

package datapath

import (
	"net"

	"github.com/elkjaer/qcore/internal/qerr"
)

// OpenIOUring is unavailable on this platform/build. Build with
// -tags giouring on Linux to get the io_uring-backed Handle.
func OpenIOUring(addr *net.UDPAddr, recv Receiver) (Handle, error) {
	return nil, qerr.New("datapath.OpenIOUring", qerr.InvalidState, "io_uring backend not enabled; build with -tags giouring on linux")
}

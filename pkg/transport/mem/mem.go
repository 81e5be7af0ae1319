// Package mem provides an in-process transport.Handle backed by net.Pipe,
// used as the reference "direct socket" a hole-punched NAT-traversal
// transport would open once assisted signalling completes, and as the
// deterministic transport the test suite dials against.
package mem

import (
	"net"

	"github.com/quietmesh/meshkeep/pkg/transport"
)

// Handle is a transport.FramedHandle over a net.Pipe connection.
type Handle = transport.FramedHandle

// Pipe returns two connected Handles, analogous to net.Pipe: writes to one
// side arrive as Recv() reads on the other.
func Pipe() (a, b *Handle) {
	c1, c2 := net.Pipe()
	return transport.NewFramedHandle(c1), transport.NewFramedHandle(c2)
}

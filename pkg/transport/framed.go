package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
)

// maxFrameSize bounds a single frame to guard against a corrupt or hostile
// length prefix causing an unbounded allocation.
const maxFrameSize = 16 << 20

// FramedHandle implements Handle over any io.ReadWriteCloser using
// length-prefixed (uint32 little-endian) framing. It carries no
// signalling phase (LocalSignal is nil, Signal is a no-op) — used
// directly by both pkg/transport/mem and pkg/transport/direct, whose
// underlying byte streams (net.Conn, libp2p network.Stream) both satisfy
// io.ReadWriteCloser.
type FramedHandle struct {
	rwc io.ReadWriteCloser

	writeMu sync.Mutex
	bw      *bufio.Writer

	recv   chan []byte
	closed chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewFramedHandle wraps rwc in a FramedHandle and starts its background
// read loop.
func NewFramedHandle(rwc io.ReadWriteCloser) *FramedHandle {
	h := &FramedHandle{
		rwc:    rwc,
		bw:     bufio.NewWriter(rwc),
		recv:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go h.readLoop()
	return h
}

func (h *FramedHandle) Send(frame []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	select {
	case <-h.closed:
		return io.ErrClosedPipe
	default:
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := h.bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := h.bw.Write(frame); err != nil {
		return err
	}
	return h.bw.Flush()
}

func (h *FramedHandle) Recv() <-chan []byte { return h.recv }

func (h *FramedHandle) Closed() <-chan struct{} { return h.closed }

func (h *FramedHandle) LocalSignal() <-chan []byte { return nil }

func (h *FramedHandle) Signal(payload []byte) error { return nil }

func (h *FramedHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.rwc.Close()
		close(h.closed)
	})
	return h.closeErr
}

func (h *FramedHandle) readLoop() {
	defer close(h.recv)
	br := bufio.NewReader(h.rwc)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n > maxFrameSize {
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return
		}
		select {
		case h.recv <- buf:
		case <-h.closed:
			return
		}
	}
}

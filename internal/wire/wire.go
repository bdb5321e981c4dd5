package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	// ProtocolVersion is sent as the first handshake payload. Clients
	// refuse to talk to a server announcing a different version.
	ProtocolVersion = 0

	// NoFd marks a message that carries no descriptor; on the wire it is
	// simply the absence of ancillary data.
	NoFd = -1

	// ShmSentinel is the payload of the message that carries the
	// shared-memory descriptor. Clients key on the descriptor, not the
	// payload, so the value is a placeholder fixed by the protocol.
	ShmSentinel = -1

	// payloadSize is the width of the integer payload, a C long on the
	// 64-bit hosts the protocol was defined on.
	payloadSize = 8
)

// ErrShortWrite reports a sendmsg that accepted fewer bytes than one full
// payload. The framing has no resynchronization, so the connection is
// unusable afterwards.
var ErrShortWrite = errors.New("wire: short write")

// Message is one decoded frame. Fd is NoFd when the frame carried no
// descriptor; otherwise the caller owns the received descriptor and must
// close it.
type Message struct {
	Value int64
	Fd    int
}

// HasFd reports whether the message carried a descriptor.
func (m Message) HasFd() bool { return m.Fd >= 0 }

// Send writes one framed message on the socket. Pass NoFd to send a
// payload-only frame. A partial write is returned as ErrShortWrite and is
// not retried; the caller decides whether that is fatal to the connection.
func Send(sock int, value int64, fd int) error {
	buf := make([]byte, payloadSize)
	binary.LittleEndian.PutUint64(buf, uint64(value))

	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}

	n, err := unix.SendmsgN(sock, buf, oob, nil, 0)
	if err != nil {
		return fmt.Errorf("wire: sendmsg: %w", err)
	}
	if n != payloadSize {
		return ErrShortWrite
	}
	return nil
}

// Recv reads one framed message from the socket, blocking until a full
// payload arrives. It returns io.EOF on orderly close. At most one
// descriptor per frame is accepted; any beyond that are closed and the
// frame is rejected.
func Recv(sock int) (Message, error) {
	buf := make([]byte, payloadSize)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(sock, buf, oob, unix.MSG_CMSG_CLOEXEC)
	if err != nil {
		return Message{}, fmt.Errorf("wire: recvmsg: %w", err)
	}
	if n == 0 {
		return Message{}, io.EOF
	}
	if n != payloadSize {
		return Message{}, fmt.Errorf("wire: truncated payload: %d bytes", n)
	}

	msg := Message{
		Value: int64(binary.LittleEndian.Uint64(buf)),
		Fd:    NoFd,
	}
	if oobn > 0 {
		fds, err := parseRights(oob[:oobn])
		if err != nil {
			return Message{}, err
		}
		if len(fds) > 1 {
			for _, fd := range fds {
				unix.Close(fd)
			}
			return Message{}, fmt.Errorf("wire: %d descriptors in one frame", len(fds))
		}
		if len(fds) == 1 {
			msg.Fd = fds[0]
		}
	}
	return msg, nil
}

func parseRights(oob []byte) ([]int, error) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("wire: parse control message: %w", err)
	}
	var fds []int
	for _, cmsg := range cmsgs {
		got, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			return nil, fmt.Errorf("wire: parse rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

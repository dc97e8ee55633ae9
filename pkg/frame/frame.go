// Package frame implements the control-socket wire codec of spec.md §4.A:
// a big-endian {op_type u16, op_len u16} header followed by op_len-4 body
// bytes, plus the NETCONF ]]>]]> sentinel streaming decoder used by the
// frontend in pkg/netconf. Reads retry on EINTR the way the original
// backend's atomicio() did, via golang.org/x/sys/unix error inspection.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// OpType is the closed set of control-socket message types (spec.md §6).
type OpType uint16

const (
	OpCommit OpType = iota + 1
	OpValidate
	OpChange
	OpSave
	OpLoad
	OpCopy
	OpRM
	OpInitDB
	OpLock
	OpUnlock
	OpKill
	OpDebug
	OpCall
	OpSubscription
	OpOK
	OpNotify
	OpErr
)

var opNames = map[OpType]string{
	OpCommit: "commit", OpValidate: "validate", OpChange: "change",
	OpSave: "save", OpLoad: "load", OpCopy: "copy", OpRM: "rm",
	OpInitDB: "initdb", OpLock: "lock", OpUnlock: "unlock", OpKill: "kill",
	OpDebug: "debug", OpCall: "call", OpSubscription: "subscription",
	OpOK: "ok", OpNotify: "notify", OpErr: "err",
}

func (o OpType) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

const headerLen = 4

// ErrCleanEOF distinguishes "peer closed the connection between messages"
// from a partial-header read, which is a protocol error.
var ErrCleanEOF = errors.New("frame: clean eof")

// Message is one decoded control-socket frame.
type Message struct {
	Type OpType
	Body []byte
}

// Encode writes msg to w as {op_type, op_len}{body}.
func Encode(w io.Writer, msg Message) error {
	total := headerLen + len(msg.Body)
	if total > 0xFFFF {
		return fmt.Errorf("frame: body too large: %d bytes", len(msg.Body))
	}
	hdr := make([]byte, headerLen)
	binary.BigEndian.PutUint16(hdr[0:2], uint16(msg.Type))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(total))
	if err := writeFull(w, hdr); err != nil {
		return err
	}
	if len(msg.Body) == 0 {
		return nil
	}
	return writeFull(w, msg.Body)
}

// Decode reads exactly one frame from r. A clean EOF at the first header
// byte returns ErrCleanEOF; any other short read is a protocol error.
func Decode(r io.Reader) (Message, error) {
	hdr := make([]byte, headerLen)
	n, err := readFullRetry(r, hdr)
	if n == 0 && errors.Is(err, io.EOF) {
		return Message{}, ErrCleanEOF
	}
	if err != nil {
		return Message{}, fmt.Errorf("frame: partial header (%d/%d bytes): %w", n, headerLen, err)
	}

	opType := OpType(binary.BigEndian.Uint16(hdr[0:2]))
	opLen := binary.BigEndian.Uint16(hdr[2:4])
	if int(opLen) < headerLen {
		return Message{}, fmt.Errorf("frame: op_len %d shorter than header", opLen)
	}
	bodyLen := int(opLen) - headerLen
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if n, err := readFullRetry(r, body); err != nil {
			return Message{}, fmt.Errorf("frame: short body (%d/%d bytes): %w", n, bodyLen, err)
		}
	}
	return Message{Type: opType, Body: body}, nil
}

// readFullRetry is io.ReadFull with EINTR retried, mirroring the original
// backend's atomicio(): would-block is left to the caller's readiness
// multiplexer, not retried here.
func readFullRetry(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
	}
	return total, nil
}

func writeFull(w io.Writer, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
	}
	return nil
}

// DebugDump renders body as a space-separated hex dump, matching the
// original backend's msg_dump() used under -D3 verbosity.
func DebugDump(prefix string, body []byte) string {
	out := prefix + ":"
	for _, b := range body {
		out += fmt.Sprintf(" %02x", b)
	}
	return out
}

// Package netconf implements the standalone NETCONF frontend of spec.md
// §4.I: a process that speaks framed NETCONF XML on stdin/stdout and
// re-dials the backend's control socket as an ordinary pkg/session client,
// translating each RPC onto the op_type set of pkg/frame.
package netconf

import (
	"fmt"
	"net"

	"github.com/sdcio/confd/pkg/cerr"
	"github.com/sdcio/confd/pkg/frame"
)

// BackendClient is a thin synchronous client of the control socket: one
// request in flight at a time, matching spec.md §4.F's "a session may have
// at most one in-flight request" constraint.
type BackendClient struct {
	path string
	conn net.Conn
}

// Dial connects to the backend's control socket at path.
func Dial(path string) (*BackendClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("netconf: dial %s: %w", path, err)
	}
	return &BackendClient{path: path, conn: conn}, nil
}

// Close closes the underlying connection.
func (c *BackendClient) Close() error {
	return c.conn.Close()
}

// Call sends one frame and waits for the single reply frame the backend
// sends back (OK, ERR, or a SAVE body riding on OK).
func (c *BackendClient) Call(op frame.OpType, fields ...string) (frame.Message, error) {
	req := frame.Message{Type: op, Body: joinFields(fields...)}
	if err := frame.Encode(c.conn, req); err != nil {
		return frame.Message{}, fmt.Errorf("netconf: send %s: %w", op, err)
	}
	reply, err := frame.Decode(c.conn)
	if err != nil {
		return frame.Message{}, fmt.Errorf("netconf: recv reply to %s: %w", op, err)
	}
	return reply, nil
}

// Subscribe opens a second connection to the same control socket and
// registers it on stream, returning the dedicated connection used to
// receive NOTIFY frames. A second connection is required because a single
// session may have only one request in flight (spec.md §4.F); RPC replies
// and asynchronous NOTIFY frames cannot safely share one framed stream.
func (c *BackendClient) Subscribe(stream string) (*BackendClient, error) {
	sub, err := Dial(c.path)
	if err != nil {
		return nil, fmt.Errorf("netconf: subscribe: %w", err)
	}
	reply, err := sub.Call(frame.OpSubscription, stream)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("netconf: subscribe %s: %w", stream, err)
	}
	if reply.Type == frame.OpErr {
		sub.Close()
		return nil, fmt.Errorf("netconf: subscribe %s: %v", stream, AsError(reply))
	}
	return sub, nil
}

// recvAsync blocks for the next frame on a connection dedicated to
// notifications (one opened via Subscribe). It is not safe to call
// concurrently with Call on the same BackendClient.
func (c *BackendClient) recvAsync() (frame.Message, error) {
	return frame.Decode(c.conn)
}

// AsError converts an ERR reply's body into the reconstructed wire error, or
// nil if msg is not an ERR frame.
func AsError(msg frame.Message) *cerr.Error {
	if msg.Type != frame.OpErr {
		return nil
	}
	fields := splitFields(msg.Body)
	w := cerr.WireErr{Reason: "malformed ERR frame"}
	if len(fields) >= 3 {
		var class, sub uint64
		fmt.Sscanf(fields[0], "%d", &class)
		fmt.Sscanf(fields[1], "%d", &sub)
		w = cerr.WireErr{ErrClass: uint32(class), SubErr: uint32(sub), Reason: fields[2]}
	}
	return w.ToError()
}

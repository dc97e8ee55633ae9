package netconf

import (
	"context"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/cerr"
	"github.com/sdcio/confd/pkg/frame"
	"github.com/sdcio/confd/pkg/xmltree"
)

// Frontend is the per-process NETCONF-over-stdio state of spec.md §4.I: one
// backend connection, one peer, strictly request/reply except for the
// notification forwarding goroutine that Run starts as soon as it begins.
type Frontend struct {
	backend   *BackendClient
	sessionID uint32
	out       io.Writer
	outMu     sync.Mutex
}

// New returns a Frontend that advertises sessionID (conventionally the
// process's own pid, per spec.md §4.I) and writes replies to out.
func New(backend *BackendClient, sessionID uint32, out io.Writer) *Frontend {
	return &Frontend{backend: backend, sessionID: sessionID, out: out}
}

// writeDoc appends the sentinel and writes doc, serialized against
// concurrent writes from the notification-forwarding goroutine.
func (f *Frontend) writeDoc(doc string) error {
	f.outMu.Lock()
	defer f.outMu.Unlock()
	_, err := f.out.Write(frame.EncodeNetconf(doc))
	return err
}

// Greet emits the opening <hello>, advertising the fixed session id and the
// base NETCONF capability.
func (f *Frontend) Greet() error {
	return f.writeDoc(encodeHello(f.sessionID))
}

// Run reads framed documents from in until EOF or ctx cancellation,
// dispatching each to handleDocument and writing its reply (if any).
func (f *Frontend) Run(ctx context.Context, in io.Reader) error {
	dec := frame.NewSentinelDecoder()
	buf := make([]byte, 4096)
	go f.forwardNotifications(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := in.Read(buf)
		if n > 0 {
			for _, doc := range dec.Feed(buf[:n]) {
				if reply, ok := f.handleDocument(doc); ok {
					if werr := f.writeDoc(reply); werr != nil {
						return werr
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// handleDocument implements spec.md §4.I's per-document dispatch. ok is
// false only for <hello> (no reply); an unparseable <rpc> or an unrecognized
// top-level element gets an <rpc-error> reply with an empty message-id.
func (f *Frontend) handleDocument(doc string) (reply string, ok bool) {
	switch sniffTopLevel(doc) {
	case topHello:
		if _, err := parseHello(doc); err != nil {
			log.Warnf("netconf: bad hello: %v", err)
		}
		return "", false
	case topRPC:
		op, err := parseRPC(doc)
		if err != nil {
			return encodeRPCError("", cerr.NetconfError{
				Type: "rpc", Tag: "malformed-message", Severity: "error", Message: err.Error(),
			}), true
		}
		return f.dispatchOp(op), true
	default:
		return encodeRPCError("", cerr.NetconfError{
			Type: "rpc", Tag: "malformed-message", Severity: "error", Message: "unrecognized top-level element",
		}), true
	}
}

// dispatchOp maps one parsed <rpc> operation to the corresponding backend
// call (spec.md §4.I's op-name table) and renders the reply.
func (f *Frontend) dispatchOp(op operation) string {
	switch op.Name {
	case "get-config":
		return f.doGetConfig(op)
	case "edit-config":
		return f.doEditConfig(op)
	case "copy-config":
		return f.doCopyConfig(op)
	case "delete-config":
		return f.doDeleteConfig(op)
	case "lock":
		return f.doLockUnlock(op, frame.OpLock)
	case "unlock":
		return f.doLockUnlock(op, frame.OpUnlock)
	case "commit":
		return f.doCommit(op)
	case "validate":
		return f.doValidate(op)
	case "discard-changes":
		return f.doDiscardChanges(op)
	case "close-session":
		return encodeOK(op.MessageID)
	case "kill-session":
		return f.doKillSession(op)
	default:
		return f.doExtension(op)
	}
}

func (f *Frontend) doGetConfig(op operation) string {
	db, nerr := sourceDB(op.Inner, "running")
	if nerr != nil {
		return encodeRPCError(op.MessageID, *nerr)
	}
	reply, err := f.backend.Call(frame.OpSave, db)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	fields := splitFields(reply.Body)
	xml := ""
	if len(fields) > 0 {
		xml = fields[0]
	}
	return encodeDataReply(op.MessageID, xml)
}

func (f *Frontend) doEditConfig(op operation) string {
	tree, err := xmltree.ParseXML([]byte(op.Inner))
	if err != nil {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "rpc", Tag: "malformed-message", Severity: "error", Message: err.Error()})
	}
	target := firstChildTag(tree, "target")
	if target == "" {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "application", Tag: "missing-element", Severity: "error", Message: "edit-config: missing <target>"})
	}
	config := tree.Child("config")
	if config == nil {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "application", Tag: "missing-element", Severity: "error", Message: "edit-config: missing <config>"})
	}
	putOp := "merge"
	if defOp := tree.Child("default-operation"); defOp != nil && defOp.Text != "" {
		putOp = defOp.Text
	}
	valueXML, err := config.ToXMLString()
	if err != nil {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "rpc", Tag: "operation-failed", Severity: "error", Message: err.Error()})
	}
	reply, err := f.backend.Call(frame.OpChange, target, putOp, "/", valueXML)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

func (f *Frontend) doCopyConfig(op operation) string {
	tree, err := xmltree.ParseXML([]byte(op.Inner))
	if err != nil {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "rpc", Tag: "malformed-message", Severity: "error", Message: err.Error()})
	}
	src := firstChildTag(tree, "source")
	dst := firstChildTag(tree, "target")
	if src == "" || dst == "" {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "application", Tag: "missing-element", Severity: "error", Message: "copy-config: missing <source> or <target>"})
	}
	reply, err := f.backend.Call(frame.OpCopy, src, dst)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

func (f *Frontend) doDeleteConfig(op operation) string {
	db, nerr := sourceDB(op.Inner, "")
	if nerr != nil {
		return encodeRPCError(op.MessageID, *nerr)
	}
	reply, err := f.backend.Call(frame.OpRM, db)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

func (f *Frontend) doLockUnlock(op operation, want frame.OpType) string {
	db, nerr := sourceDB(op.Inner, "")
	if nerr != nil {
		return encodeRPCError(op.MessageID, *nerr)
	}
	reply, err := f.backend.Call(want, db)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

func (f *Frontend) doCommit(op operation) string {
	reply, err := f.backend.Call(frame.OpCommit, "running")
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

func (f *Frontend) doValidate(op operation) string {
	db, _ := sourceDB(op.Inner, "running")
	reply, err := f.backend.Call(frame.OpValidate, db)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

// doDiscardChanges restores candidate from running, the conventional
// discard-changes semantics.
func (f *Frontend) doDiscardChanges(op operation) string {
	reply, err := f.backend.Call(frame.OpCopy, "running", "candidate")
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

func (f *Frontend) doKillSession(op operation) string {
	tree, err := xmltree.ParseXML([]byte(op.Inner))
	if err != nil {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "rpc", Tag: "malformed-message", Severity: "error", Message: err.Error()})
	}
	sid := tree.Child("session-id")
	if sid == nil || sid.Text == "" {
		return encodeRPCError(op.MessageID, cerr.NetconfError{Type: "application", Tag: "missing-element", Severity: "error", Message: "kill-session: missing <session-id>"})
	}
	reply, err := f.backend.Call(frame.OpKill, sid.Text)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	return encodeOK(op.MessageID)
}

// doExtension forwards an unrecognized operation name to a plugin-registered
// RPC handler via CALL(namespace="netconf", name=op.Name).
func (f *Frontend) doExtension(op operation) string {
	reply, err := f.backend.Call(frame.OpCall, "netconf", op.Name)
	if err != nil {
		return encodeRPCError(op.MessageID, transportError(err))
	}
	if reply.Type == frame.OpErr {
		return encodeRPCError(op.MessageID, AsError(reply).ToNetconfError())
	}
	fields := splitFields(reply.Body)
	if len(fields) > 0 && fields[0] != "" {
		return encodeDataReply(op.MessageID, fields[0])
	}
	return encodeOK(op.MessageID)
}

// forwardNotifications relays backend NOTIFY frames onto stdout as
// <notification> documents until ctx is cancelled or the backend connection
// closes, implementing the asynchronous half of spec.md §4.H's notification
// bus for NETCONF peers subscribed via SUBSCRIPTION.
func (f *Frontend) forwardNotifications(ctx context.Context) {
	sub, err := f.backend.Subscribe("CLICON")
	if err != nil {
		log.Warnf("netconf: notification subscription failed: %v", err)
		return
	}
	defer sub.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := sub.recvAsync()
		if err != nil {
			return
		}
		if msg.Type != frame.OpNotify {
			continue
		}
		fields := splitFields(msg.Body)
		payload := ""
		if len(fields) > 0 {
			payload = fields[0]
		}
		doc := fmt.Sprintf(`<notification xmlns="urn:ietf:params:xml:ns:netconf:notification:1.0"><eventTime/><payload>%s</payload></notification>`, xmlEscape(payload))
		if err := f.writeDoc(doc); err != nil {
			return
		}
	}
}

func transportError(err error) cerr.NetconfError {
	return cerr.NetconfError{Type: "transport", Tag: "operation-failed", Severity: "error", Message: err.Error()}
}

// sourceDB extracts the first child's tag name under <source>, falling back
// to <target> if source is absent and to fallback if both are absent — most
// ops only carry one of the two.
func sourceDB(innerXML, fallback string) (string, *cerr.NetconfError) {
	tree, err := xmltree.ParseXML([]byte(innerXML))
	if err != nil {
		return "", &cerr.NetconfError{Type: "rpc", Tag: "malformed-message", Severity: "error", Message: err.Error()}
	}
	if db := firstChildTag(tree, "source"); db != "" {
		return db, nil
	}
	if db := firstChildTag(tree, "target"); db != "" {
		return db, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", &cerr.NetconfError{Type: "application", Tag: "missing-element", Severity: "error", Message: "missing <source> or <target>"}
}

// firstChildTag returns the tag name of container's first child named
// wrapperTag, e.g. firstChildTag(tree, "target") for <target><candidate/></target>.
func firstChildTag(tree *xmltree.Node, wrapperTag string) string {
	wrapper := tree.Child(wrapperTag)
	if wrapper == nil || len(wrapper.Children) == 0 {
		return ""
	}
	return wrapper.Children[0].Tag
}

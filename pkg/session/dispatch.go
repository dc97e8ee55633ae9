package session

import (
	"context"
	"fmt"
	"os/user"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/cerr"
	"github.com/sdcio/confd/pkg/confdctx"
	"github.com/sdcio/confd/pkg/frame"
	"github.com/sdcio/confd/pkg/xmltree"
)

// Dispatch routes one decoded frame to its handler and returns the reply to
// send back on the same session (spec.md §4.F's op_type table). KILL may
// additionally call sessions.Destroy on a different session id; Destroy
// itself unregisters and closes that session's descriptor.
func Dispatch(ctx context.Context, cc *confdctx.Context, sessions *Manager, s *Session, msg frame.Message) frame.Message {
	fields := splitFields(msg.Body)

	switch msg.Type {
	case frame.OpCommit:
		return dispatchCommit(ctx, cc, s, fields)
	case frame.OpValidate:
		return dispatchValidate(ctx, cc, s, fields)
	case frame.OpChange:
		return dispatchChange(cc, s, fields)
	case frame.OpSave, frame.OpLoad:
		return dispatchSaveLoad(cc, msg.Type, fields)
	case frame.OpCopy:
		return dispatchCopy(cc, fields)
	case frame.OpRM:
		return dispatchRM(cc, fields)
	case frame.OpInitDB:
		return dispatchInitDB(cc, fields)
	case frame.OpLock:
		return dispatchLock(cc, s, fields)
	case frame.OpUnlock:
		return dispatchUnlock(cc, s, fields)
	case frame.OpKill:
		return dispatchKill(cc, sessions, s, fields)
	case frame.OpDebug:
		return dispatchDebug(fields)
	case frame.OpCall:
		return dispatchCall(ctx, cc, fields)
	case frame.OpSubscription:
		return dispatchSubscription(cc, s, fields)
	default:
		return errReply(cerr.New(cerr.ClassProtocol, "unknown op_type %s", msg.Type))
	}
}

func okReply() frame.Message {
	return frame.Message{Type: frame.OpOK}
}

// errReply encodes the full {err_class, sub_err, reason} triple spec.md §4.F
// requires on the wire, so a remote client (notably pkg/netconf, re-dialing
// as a plain session) can reconstruct the error class without a shared
// in-process *cerr.Error.
func errReply(err *cerr.Error) frame.Message {
	w := err.ToWireErr()
	return frame.Message{Type: frame.OpErr, Body: joinFields(
		strconv.FormatUint(uint64(w.ErrClass), 10),
		strconv.FormatUint(uint64(w.SubErr), 10),
		w.Reason,
	)}
}

func requireLocked(cc *confdctx.Context, s *Session, db string) *cerr.Error {
	if !cc.Locks.IsHeldBy(db, s.ID()) {
		return cerr.New(cerr.ClassDatabase, "lock-denied: %s not held by session %d", db, s.ID())
	}
	return nil
}

func dispatchCommit(ctx context.Context, cc *confdctx.Context, s *Session, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "COMMIT: missing target"))
	}
	target := fields[0]
	if cc.Metrics != nil {
		cc.Metrics.CommitsTotal.Inc()
	}
	res := cc.Commit.Commit(ctx, s.ID(), "candidate", target)
	if res.Err != nil {
		if cc.Metrics != nil {
			cc.Metrics.CommitsFailedTotal.Inc()
		}
		return errReply(res.Err)
	}
	return okReply()
}

func dispatchValidate(ctx context.Context, cc *confdctx.Context, s *Session, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "VALIDATE: missing target"))
	}
	res := cc.Commit.Validate(ctx, s.ID(), "candidate", fields[0])
	if res.Err != nil {
		return errReply(res.Err)
	}
	return okReply()
}

func dispatchChange(cc *confdctx.Context, s *Session, fields []string) frame.Message {
	if len(fields) < 3 {
		return errReply(cerr.New(cerr.ClassProtocol, "CHANGE: expected db, op, path[, value]"))
	}
	db, opName, path := fields[0], fields[1], fields[2]
	if lerr := requireLocked(cc, s, db); lerr != nil {
		return errReply(lerr)
	}
	op, err := parseOp(opName)
	if err != nil {
		return errReply(cerr.New(cerr.ClassProtocol, "%v", err))
	}

	var sub *xmltree.Node
	if op != xmltree.OpRemove && len(fields) >= 4 && fields[3] != "" {
		sub, err = xmltree.ParseXML([]byte(fields[3]))
		if err != nil {
			return errReply(cerr.New(cerr.ClassXML, "CHANGE: %v", err))
		}
	}
	if err := cc.Store.Put(db, op, path, sub); err != nil {
		return errReply(cerr.Database(err, "store error"))
	}
	return okReply()
}

func parseOp(name string) (xmltree.Op, error) {
	switch name {
	case "merge":
		return xmltree.OpMerge, nil
	case "replace":
		return xmltree.OpReplace, nil
	case "remove":
		return xmltree.OpRemove, nil
	default:
		return 0, fmt.Errorf("unknown put op %q", name)
	}
}

func dispatchSaveLoad(cc *confdctx.Context, op frame.OpType, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "%s: missing db", op))
	}
	db := fields[0]
	if op == frame.OpSave {
		tree, err := cc.Store.Get(db, "")
		if err != nil {
			return errReply(cerr.Database(err, "store error"))
		}
		xml, err := tree.ToXMLString()
		if err != nil {
			return errReply(cerr.New(cerr.ClassXML, "%v", err))
		}
		return frame.Message{Type: frame.OpOK, Body: joinFields(xml)}
	}
	// LOAD: fields[1] is the XML document to replace db's content with.
	if len(fields) < 2 {
		return errReply(cerr.New(cerr.ClassProtocol, "LOAD: missing document"))
	}
	tree, err := xmltree.ParseXML([]byte(fields[1]))
	if err != nil {
		return errReply(cerr.New(cerr.ClassXML, "%v", err))
	}
	if err := cc.Store.Put(db, xmltree.OpReplace, "/", tree); err != nil {
		return errReply(cerr.Database(err, "store error"))
	}
	return okReply()
}

func dispatchCopy(cc *confdctx.Context, fields []string) frame.Message {
	if len(fields) < 2 {
		return errReply(cerr.New(cerr.ClassProtocol, "COPY: expected src, dst"))
	}
	if err := cc.Store.Copy(fields[0], fields[1]); err != nil {
		return errReply(cerr.Database(err, "store error"))
	}
	return okReply()
}

func dispatchRM(cc *confdctx.Context, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "RM: missing db"))
	}
	if err := cc.Store.Delete(fields[0]); err != nil {
		return errReply(cerr.Database(err, "store error"))
	}
	return okReply()
}

func dispatchInitDB(cc *confdctx.Context, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "INITDB: missing db"))
	}
	if err := cc.Store.InitDB(fields[0]); err != nil {
		return errReply(cerr.Database(err, "store error"))
	}
	return okReply()
}

func dispatchLock(cc *confdctx.Context, s *Session, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "LOCK: missing db"))
	}
	if err := cc.Locks.Lock(fields[0], s.ID()); err != nil {
		if cc.Metrics != nil {
			cc.Metrics.LockDeniedTotal.Inc()
		}
		return errReply(cerr.New(cerr.ClassDatabase, "%v", err))
	}
	return okReply()
}

func dispatchUnlock(cc *confdctx.Context, s *Session, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "UNLOCK: missing db"))
	}
	if err := cc.Locks.Unlock(fields[0], s.ID()); err != nil {
		return errReply(cerr.New(cerr.ClassDatabase, "%v", err))
	}
	return okReply()
}

// dispatchKill implements spec.md §4.F's "requires privileged group" note:
// the requester must be a member of the control socket's configured owner
// group (or root) to forcibly destroy another session.
func dispatchKill(cc *confdctx.Context, sessions *Manager, requester *Session, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "KILL: missing session id"))
	}
	if requester.UID != 0 && !requesterInPrivilegedGroup(cc, requester) {
		return errReply(cerr.New(cerr.ClassUnix, "KILL: session %d not in privileged group", requester.ID()))
	}
	var target uint32
	if _, err := fmt.Sscanf(fields[0], "%d", &target); err != nil {
		return errReply(cerr.New(cerr.ClassProtocol, "KILL: bad session id %q", fields[0]))
	}
	if _, ok := sessions.Get(target); !ok {
		return errReply(cerr.New(cerr.ClassProtocol, "KILL: no such session %d", target))
	}
	sessions.Destroy(target)
	return okReply()
}

func requesterInPrivilegedGroup(cc *confdctx.Context, requester *Session) bool {
	if cc == nil || cc.Config == nil || cc.Config.SocketGroup == "" {
		return true
	}
	grp, err := user.LookupGroup(cc.Config.SocketGroup)
	if err != nil {
		log.Warnf("session: KILL: lookup privileged group %s: %v", cc.Config.SocketGroup, err)
		return false
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return false
	}
	return requester.GID == uint32(gid)
}

func dispatchDebug(fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "DEBUG: missing level"))
	}
	setLogLevel(fields[0])
	return okReply()
}

func dispatchCall(ctx context.Context, cc *confdctx.Context, fields []string) frame.Message {
	if len(fields) < 2 {
		return errReply(cerr.New(cerr.ClassProtocol, "CALL: expected namespace, name[, params...]"))
	}
	namespace, name := fields[0], fields[1]
	handler, ok := cc.Plugins.LookupRPC(namespace, name)
	if !ok {
		return errReply(cerr.New(cerr.ClassPlugin, "CALL: no handler for %s:%s", namespace, name))
	}
	params := map[string]string{}
	for i := 2; i+1 < len(fields); i += 2 {
		params[fields[i]] = fields[i+1]
	}
	result, err := handler(ctx, params)
	if err != nil {
		return errReply(cerr.Plugin(err, "%s:%s", namespace, name))
	}
	return frame.Message{Type: frame.OpOK, Body: joinFields(result)}
}

func dispatchSubscription(cc *confdctx.Context, s *Session, fields []string) frame.Message {
	if len(fields) < 1 {
		return errReply(cerr.New(cerr.ClassProtocol, "SUBSCRIPTION: missing stream"))
	}
	cc.Notify.Subscribe(fields[0], s)
	return okReply()
}

package cerr

// WireErr is the body of a control-socket ERR frame (spec.md §4.F).
type WireErr struct {
	ErrClass uint32
	SubErr   uint32
	Reason   string
}

var classOrder = []Class{
	ClassFatal, ClassUnix, ClassSyslog, ClassXML, ClassSchema,
	ClassDatabase, ClassConfig, ClassProtocol, ClassPlugin, ClassDemon,
}

func classIndex(c Class) uint32 {
	for i, cc := range classOrder {
		if cc == c {
			return uint32(i)
		}
	}
	return uint32(len(classOrder))
}

// ToWireErr converts an Error to the wire ERR frame body.
func (e *Error) ToWireErr() WireErr {
	return WireErr{
		ErrClass: classIndex(e.Class),
		SubErr:   uint32(e.Sub),
		Reason:   e.Reason,
	}
}

func classFromIndex(i uint32) Class {
	if int(i) < len(classOrder) {
		return classOrder[i]
	}
	return ClassDemon
}

// ToError reconstructs an *Error from a wire ERR frame body, the inverse of
// ToWireErr (minus the original cause, which never crosses the wire).
func (w WireErr) ToError() *Error {
	return &Error{Class: classFromIndex(w.ErrClass), Sub: int(w.SubErr), Reason: w.Reason}
}

// ToNetconfError maps a wire ERR frame body directly to the NETCONF error
// envelope, for use by pkg/netconf after it re-dials the backend as a client.
func (w WireErr) ToNetconfError() NetconfError {
	return w.ToError().ToNetconfError()
}

// NetconfError is the {type, tag, severity, app-tag?, path?, message} shape
// spec.md §4.D/§4.I require for rpc-error elements.
type NetconfError struct {
	Type     string
	Tag      string
	Severity string
	AppTag   string
	Path     string
	Message  string
}

// ToNetconfError maps a class to the NETCONF-shaped error envelope. Path, if
// known to the caller (e.g. a commit validation failure), should be set on
// the returned value afterwards.
func (e *Error) ToNetconfError() NetconfError {
	ne := NetconfError{
		Severity: "error",
		Message:  e.Reason,
	}
	switch e.Class {
	case ClassProtocol, ClassXML:
		ne.Type = "rpc"
		ne.Tag = "malformed-message"
	case ClassSchema:
		ne.Type = "application"
		ne.Tag = "invalid-value"
	case ClassDatabase:
		ne.Type = "application"
		ne.Tag = "operation-failed"
	case ClassPlugin:
		ne.Type = "application"
		ne.Tag = "operation-failed"
	case ClassConfig, ClassFatal, ClassDemon:
		ne.Type = "application"
		ne.Tag = "operation-failed"
	default:
		ne.Type = "transport"
		ne.Tag = "operation-failed"
	}
	return ne
}

// WithPath returns a copy of ne with Path set, used when the failure is
// attributable to a specific subtree.
func (ne NetconfError) WithPath(path string) NetconfError {
	ne.Path = path
	return ne
}

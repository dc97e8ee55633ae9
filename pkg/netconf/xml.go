package netconf

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/sdcio/confd/pkg/cerr"
)

const baseNamespace = "urn:ietf:params:xml:ns:netconf:base:1.0"
const baseCapability = "urn:ietf:params:netconf:base:1.0"

// helloDoc is both the outbound capability advertisement and the shape used
// to parse an inbound <hello>.
type helloDoc struct {
	XMLName      xml.Name `xml:"hello"`
	SessionID    uint32   `xml:"session-id,omitempty"`
	Capabilities []string `xml:"capabilities>capability"`
}

func encodeHello(sessionID uint32) string {
	return fmt.Sprintf(
		`<hello xmlns=%q><capabilities><capability>%s</capability></capabilities><session-id>%d</session-id></hello>`,
		baseNamespace, baseCapability, sessionID,
	)
}

// parseHello extracts the peer's advertised capabilities from an inbound
// <hello> document.
func parseHello(doc string) ([]string, error) {
	var h helloDoc
	if err := xml.Unmarshal([]byte(doc), &h); err != nil {
		return nil, fmt.Errorf("netconf: parse hello: %w", err)
	}
	return h.Capabilities, nil
}

// topLevel sniffs whether doc is a <hello>, an <rpc>, or something else,
// without fully decoding it, mirroring spec.md §4.I's "dispatch by top
// element" step.
type topLevel int

const (
	topUnknown topLevel = iota
	topHello
	topRPC
)

func sniffTopLevel(doc string) topLevel {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return topUnknown
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch se.Name.Local {
			case "hello":
				return topHello
			case "rpc":
				return topRPC
			default:
				return topUnknown
			}
		}
	}
}

// operation is one parsed <rpc> operation: its element name, message-id, and
// its own inner XML for op-specific parsing (e.g. <config> under
// <edit-config>).
type operation struct {
	Name      string
	MessageID string
	Inner     string
}

// parseRPC extracts the message-id and the single operation child of an
// <rpc> document.
func parseRPC(doc string) (operation, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	var op operation
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			depth++
			if se.Name.Local == "rpc" {
				for _, a := range se.Attr {
					if a.Name.Local == "message-id" {
						op.MessageID = a.Value
					}
				}
				continue
			}
			if depth == 2 && op.Name == "" {
				op.Name = se.Name.Local
				raw, err := captureElement(dec, se)
				if err != nil {
					return operation{}, fmt.Errorf("netconf: parse %s: %w", se.Name.Local, err)
				}
				op.Inner = raw
			}
		}
	}
	if op.Name == "" {
		return operation{}, fmt.Errorf("netconf: rpc has no operation element")
	}
	return op, nil
}

// captureElement re-encodes everything between se and its matching end tag,
// used to hand an operation's own subtree (e.g. <config>) to xmltree.ParseXML
// without re-parsing the whole document.
func captureElement(dec *xml.Decoder, se xml.StartElement) (string, error) {
	var sb strings.Builder
	enc := xml.NewEncoder(&sb)
	if err := enc.EncodeToken(se); err != nil {
		return "", err
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if err := enc.EncodeToken(t); err != nil {
				return "", err
			}
		case xml.EndElement:
			depth--
			if err := enc.EncodeToken(t); err != nil {
				return "", err
			}
		default:
			if err := enc.EncodeToken(tok); err != nil {
				return "", err
			}
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// encodeOK renders <rpc-reply message-id="..."><ok/></rpc-reply>.
func encodeOK(messageID string) string {
	return fmt.Sprintf(`<rpc-reply xmlns=%q message-id=%q><ok/></rpc-reply>`, baseNamespace, messageID)
}

// encodeDataReply renders <rpc-reply message-id="..."><data>...</data></rpc-reply>
// for get-config style replies.
func encodeDataReply(messageID, dataXML string) string {
	return fmt.Sprintf(`<rpc-reply xmlns=%q message-id=%q><data>%s</data></rpc-reply>`, baseNamespace, messageID, dataXML)
}

// encodeRPCError renders <rpc-reply message-id="..."><rpc-error>...</rpc-error></rpc-reply>
// from the {type, tag, severity, app-tag?, path?, message} fields of
// spec.md §4.D/§4.I.
func encodeRPCError(messageID string, ne cerr.NetconfError) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<rpc-reply xmlns=%q message-id=%q><rpc-error>`, baseNamespace, messageID)
	fmt.Fprintf(&sb, `<error-type>%s</error-type>`, ne.Type)
	fmt.Fprintf(&sb, `<error-tag>%s</error-tag>`, ne.Tag)
	fmt.Fprintf(&sb, `<error-severity>%s</error-severity>`, ne.Severity)
	if ne.AppTag != "" {
		fmt.Fprintf(&sb, `<error-app-tag>%s</error-app-tag>`, ne.AppTag)
	}
	if ne.Path != "" {
		fmt.Fprintf(&sb, `<error-path>%s</error-path>`, xmlEscape(ne.Path))
	}
	fmt.Fprintf(&sb, `<error-message>%s</error-message>`, xmlEscape(ne.Message))
	sb.WriteString(`</rpc-error></rpc-reply>`)
	return sb.String()
}

func xmlEscape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

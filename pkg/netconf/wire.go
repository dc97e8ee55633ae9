package netconf

import "bytes"

// splitFields/joinFields mirror pkg/session's NUL-terminated field
// convention; duplicated here rather than imported since pkg/netconf talks
// to the backend purely as a wire client, not as an in-process collaborator.
func splitFields(body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	parts := bytes.Split(body, []byte{0})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, string(p))
	}
	if out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func joinFields(fields ...string) []byte {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(f)
	}
	return buf.Bytes()
}

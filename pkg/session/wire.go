package session

import "bytes"

// splitFields splits a frame body into its NUL-terminated string fields
// (spec.md §3 Message: "a sequence of NUL-terminated strings"). A trailing
// field without a terminating NUL is still returned, matching how the
// original wire format allows the last field to run to the end of the body.
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

// joinFields is the inverse of splitFields.
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

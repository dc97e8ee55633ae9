package confdctx

import "testing"

func TestNextSessionIDIsMonotonicStartingAtOne(t *testing.T) {
	c := &Context{}
	first := c.NextSessionID()
	second := c.NextSessionID()
	if first != 1 || second != 2 {
		t.Fatalf("expected session ids 1, 2, got %d, %d", first, second)
	}
}

package exhaustion

import "testing"

func TestMarkClearIsExhausted(t *testing.T) {
	r := New()
	if r.IsExhausted("p1", "claude") {
		t.Fatal("expected not exhausted initially")
	}
	r.Mark("p1", "claude")
	if !r.IsExhausted("p1", "claude") {
		t.Fatal("expected exhausted after mark")
	}
	if r.IsExhausted("p2", "claude") {
		t.Fatal("exhaustion must be scoped per project")
	}
	r.Clear("p1", "claude")
	if r.IsExhausted("p1", "claude") {
		t.Fatal("expected cleared")
	}
}

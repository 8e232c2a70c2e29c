package protocol

import "testing"

func TestRegistryIndexAssignment(t *testing.T) {
	reg := NewRegistry()
	a := reg.Register("chat", nil, 0)
	b := reg.Register("other", nil, 8)

	if a.Index != 0 || b.Index != 1 {
		t.Fatalf("unexpected indices: a=%d b=%d", a.Index, b.Index)
	}
	if reg.Count() != 2 {
		t.Fatalf("Count = %d, want 2", reg.Count())
	}

	first, ok := reg.First()
	if !ok || first != a {
		t.Fatal("First() should return the head-of-registry protocol")
	}

	got, ok := reg.ByName("other")
	if !ok || got != b {
		t.Fatal("ByName lookup failed")
	}

	if _, ok := reg.ByName("missing"); ok {
		t.Error("ByName should report false for unregistered names")
	}
}

func TestProtocolBroadcastBeforeBindFails(t *testing.T) {
	p := &Protocol{Name: "chat"}
	if _, err := p.Broadcast([]byte("x")); err != ErrProtocolNotBound {
		t.Fatalf("expected ErrProtocolNotBound, got %v", err)
	}
}

func TestProtocolBroadcastUsesBoundDispatch(t *testing.T) {
	p := &Protocol{Name: "chat"}
	var gotPayload []byte
	p.BindDispatch(func(payload []byte) (int, error) {
		gotPayload = payload
		return len(payload), nil
	})

	n, err := p.Broadcast([]byte("hello"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n != 5 || string(gotPayload) != "hello" {
		t.Errorf("unexpected dispatch result: n=%d payload=%q", n, gotPayload)
	}
}

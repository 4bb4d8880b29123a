package relay

import (
	"testing"

	"liveclass/internal/core"
)

type memberConn struct {
	frames []core.Frame
	full   bool
	closed bool
}

func (m *memberConn) TrySend(f core.Frame) error {
	if m.full {
		return ErrBackpressure
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *memberConn) Close() { m.closed = true }

func TestRoomCapsAtTwoMembers(t *testing.T) {
	r := NewRoom("classroom-1")

	if err := r.AddMember("vera", &memberConn{}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddMember("ilya", &memberConn{}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddMember("observer", &memberConn{}); err != ErrRoomFull {
		t.Fatalf("third join: got %v, want ErrRoomFull", err)
	}
	if err := r.AddMember("vera", &memberConn{}); err != ErrAlreadyJoined {
		t.Fatalf("duplicate join: got %v, want ErrAlreadyJoined", err)
	}
	if r.MemberCount() != 2 {
		t.Fatalf("member count = %d", r.MemberCount())
	}
}

func TestSeatFreesOnLeave(t *testing.T) {
	r := NewRoom("classroom-1")
	r.AddMember("vera", &memberConn{})
	r.AddMember("ilya", &memberConn{})

	r.RemoveMember("ilya")
	if err := r.AddMember("ilya", &memberConn{}); err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	r := NewRoom("classroom-1")
	vera := &memberConn{}
	ilya := &memberConn{}
	r.AddMember("vera", vera)
	r.AddMember("ilya", ilya)

	res := r.Broadcast("vera", core.Frame(`{"command":"CURSOR_MOVE"}`))
	if res.SentTo != 1 || len(res.Dropped) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(vera.frames) != 0 {
		t.Fatal("sender must not receive its own frame")
	}
	if len(ilya.frames) != 1 {
		t.Fatalf("peer frames = %d", len(ilya.frames))
	}
}

func TestBroadcastDropsSlowReceiver(t *testing.T) {
	r := NewRoom("classroom-1")
	r.AddMember("vera", &memberConn{})
	slow := &memberConn{full: true}
	r.AddMember("ilya", slow)

	res := r.Broadcast("vera", core.Frame(`{}`))
	if res.SentTo != 0 {
		t.Fatalf("sent to %d, want 0", res.SentTo)
	}
	if len(res.Dropped) != 1 || res.Dropped[0] != "ilya" {
		t.Fatalf("dropped = %v", res.Dropped)
	}
}

func TestCloseAllEvictsEveryMember(t *testing.T) {
	r := NewRoom("classroom-1")
	vera := &memberConn{}
	ilya := &memberConn{}
	r.AddMember("vera", vera)
	r.AddMember("ilya", ilya)

	r.CloseAll()
	if !vera.closed || !ilya.closed {
		t.Fatal("connections must be closed")
	}
	if r.MemberCount() != 0 {
		t.Fatalf("member count = %d", r.MemberCount())
	}
}

func TestHubRoomLifetimes(t *testing.T) {
	h := NewHub()

	a := h.GetOrCreate("classroom-1")
	if b := h.GetOrCreate("classroom-1"); b != a {
		t.Fatal("GetOrCreate must return the same room")
	}
	h.GetOrCreate("classroom-2")

	if got := len(h.List()); got != 2 {
		t.Fatalf("rooms = %d", got)
	}

	conn := &memberConn{}
	a.AddMember("vera", conn)
	h.StopRoom("classroom-1")
	if !conn.closed {
		t.Fatal("stopping a room must close its connections")
	}
	if _, ok := h.Get("classroom-1"); ok {
		t.Fatal("stopped room must be gone")
	}
}

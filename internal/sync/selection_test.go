package sync

import (
	"testing"
	"time"

	"liveclass/internal/content"
)

func lessonTree() (*content.Node, *content.Node, *content.Node) {
	t1 := content.Text("Read the passage ")
	t2 := content.Text("aloud and carefully")
	root := content.Element(
		content.Block("intro", t1, content.Element(t2)),
		content.Block("empty-block"),
	)
	return root, t1, t2
}

func newSelectionPair(t *testing.T) (*peers, *SelectionSync, *SelectionSync, *content.Node, *content.Node, *content.Node) {
	p := newPeers(t)
	root, t1, t2 := lessonTree()
	teacher := NewSelectionSync(p.teacherCh, p.teacher, root, time.Millisecond)
	student := NewSelectionSync(p.studentCh, p.student, root, time.Millisecond)
	t.Cleanup(func() {
		teacher.Close()
		student.Close()
	})
	return p, teacher, student, root, t1, t2
}

// selectRange drives the pointer-down / change / pointer-up flow and waits
// for the debounced computation.
func selectRange(t *testing.T, s *SelectionSync, r NativeRange) {
	t.Helper()
	s.PointerDown()
	s.SelectionChanged(r)
	s.PointerUp()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Pending(); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("pending highlight never surfaced")
}

func TestSelectionPendingBeforeBroadcast(t *testing.T) {
	p, teacher, student, _, t1, t2 := newSelectionPair(t)
	fc := countFrames(p.studentTr)

	selectRange(t, teacher, NativeRange{StartNode: t1, StartOff: 5, EndNode: t2, EndOff: 5})

	pending, ok := teacher.Pending()
	if !ok {
		t.Fatal("no pending highlight")
	}
	if pending.BlockID != "intro" || pending.Text != "the passage aloud" {
		t.Fatalf("pending = %+v", pending)
	}
	// Nothing goes over the wire until the user confirms.
	if fc.count() != 0 {
		t.Fatalf("frames = %d before confirmation", fc.count())
	}
	if _, ok := student.Remote(); ok {
		t.Fatal("student saw an unconfirmed highlight")
	}
}

func TestConfirmBroadcastsAndSetsLocal(t *testing.T) {
	_, teacher, student, _, t1, _ := newSelectionPair(t)

	selectRange(t, teacher, NativeRange{StartNode: t1, StartOff: 0, EndNode: t1, EndOff: 4})
	teacher.Confirm()

	local, ok := teacher.Local()
	if !ok || local.Text != "Read" {
		t.Fatalf("local highlight = %+v/%v", local, ok)
	}
	remote, ok := student.Remote()
	if !ok || remote.Text != "Read" || remote.BlockID != "intro" || !remote.IsTeacher {
		t.Fatalf("remote highlight = %+v/%v", remote, ok)
	}

	spans, ok := student.RemoteSpans()
	if !ok || len(spans) != 1 {
		t.Fatalf("remote spans = %v/%v", spans, ok)
	}
}

func TestRemoteSpansRoundTripText(t *testing.T) {
	_, teacher, student, root, t1, t2 := newSelectionPair(t)

	selectRange(t, teacher, NativeRange{StartNode: t1, StartOff: 9, EndNode: t2, EndOff: 5})
	teacher.Confirm()

	remote, _ := student.Remote()
	block, _ := content.FindBlock(root, remote.BlockID)
	_, text, ok := content.Resolve(block, remote.StartOffset, remote.EndOffset)
	if !ok || text != remote.Text {
		t.Fatalf("walk reproduced %q, want %q", text, remote.Text)
	}
}

func TestClearBroadcastsDeselect(t *testing.T) {
	_, teacher, student, _, t1, _ := newSelectionPair(t)

	selectRange(t, teacher, NativeRange{StartNode: t1, StartOff: 0, EndNode: t1, EndOff: 4})
	teacher.Confirm()
	if _, ok := student.Remote(); !ok {
		t.Fatal("precondition: remote highlight set")
	}

	teacher.ClearLocal()
	if _, ok := teacher.Local(); ok {
		t.Fatal("local highlight survived clear")
	}
	if _, ok := student.Remote(); ok {
		t.Fatal("remote highlight survived TEXT_DESELECT")
	}
}

func TestSelectionOutsideBlocksIgnored(t *testing.T) {
	p := newPeers(t)
	orphanText := content.Text("floating text")
	root := content.Element(content.Block("intro", content.Text("real content")), orphanText)
	s := NewSelectionSync(p.teacherCh, p.teacher, root, time.Millisecond)
	defer s.Close()

	// orphanText has no block ancestor, so nothing may surface.
	s.PointerDown()
	s.SelectionChanged(NativeRange{StartNode: orphanText, StartOff: 0, EndNode: orphanText, EndOff: 5})
	s.PointerUp()
	time.Sleep(20 * time.Millisecond)

	if _, ok := s.Pending(); ok {
		t.Fatal("selection outside any block surfaced a highlight")
	}
}

func TestUnresolvableRemoteHighlightSkipsRender(t *testing.T) {
	p := newPeers(t)
	root, t1, _ := lessonTree()
	// The student renders a shorter variant of the block, so the
	// teacher's offsets run past its text.
	shortRoot := content.Element(content.Block("intro", content.Text("short")))
	teacher := NewSelectionSync(p.teacherCh, p.teacher, root, time.Millisecond)
	student := NewSelectionSync(p.studentCh, p.student, shortRoot, time.Millisecond)
	defer teacher.Close()
	defer student.Close()

	selectRange(t, teacher, NativeRange{StartNode: t1, StartOff: 0, EndNode: t1, EndOff: 16})
	teacher.Confirm()

	if _, ok := student.Remote(); !ok {
		t.Fatal("remote state itself should be stored")
	}
	if _, ok := student.RemoteSpans(); ok {
		t.Fatal("unresolvable offsets must skip the render, not panic")
	}
}

func TestActiveDragDefersComputation(t *testing.T) {
	_, teacher, _, _, t1, _ := newSelectionPair(t)

	teacher.PointerDown()
	teacher.SelectionChanged(NativeRange{StartNode: t1, StartOff: 0, EndNode: t1, EndOff: 4})
	time.Sleep(20 * time.Millisecond)

	// Still dragging: the debounce fired but the selecting flag held it.
	if _, ok := teacher.Pending(); ok {
		t.Fatal("highlight surfaced mid-drag")
	}
	teacher.PointerUp()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := teacher.Pending(); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("highlight never surfaced after pointer-up")
}

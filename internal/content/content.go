// Package content models the shared lesson container as a node tree and
// implements the text walk that turns native selections into absolute
// character offsets and back. Both directions run the same left-to-right
// walk over visible text nodes, which is what makes offsets portable
// between two clients rendering the same block.
package content

import (
	"strings"

	"liveclass/internal/domain"
)

type NodeKind int

const (
	NodeElement NodeKind = iota
	NodeText
	NodeScript
	NodeStyle
)

type Node struct {
	Kind     NodeKind
	Text     string          // NodeText only
	BlockID  domain.BlockID  // set on block root elements, empty otherwise
	Children []*Node
}

func Element(children ...*Node) *Node {
	return &Node{Kind: NodeElement, Children: children}
}

func Block(id domain.BlockID, children ...*Node) *Node {
	return &Node{Kind: NodeElement, BlockID: id, Children: children}
}

func Text(s string) *Node { return &Node{Kind: NodeText, Text: s} }

// Span is one contiguous run of selected characters inside a single text
// node. A selection spanning multiple inline nodes resolves to multiple
// spans; the renderer draws one rectangle per span.
type Span struct {
	Node  *Node
	Start int // rune offset within Node.Text
	End   int
}

// FindBlock locates the element carrying id anywhere under root.
func FindBlock(root *Node, id domain.BlockID) (*Node, bool) {
	if root == nil {
		return nil, false
	}
	if root.BlockID == id && root.Kind == NodeElement {
		return root, true
	}
	for _, c := range root.Children {
		if n, ok := FindBlock(c, id); ok {
			return n, true
		}
	}
	return nil, false
}

// BlockFor returns the nearest ancestor-or-self of target that carries a
// block id. The zero value means target sits outside any block.
func BlockFor(root, target *Node) (domain.BlockID, bool) {
	var found domain.BlockID
	var walk func(n *Node, current domain.BlockID) bool
	walk = func(n *Node, current domain.BlockID) bool {
		if n.BlockID != "" {
			current = n.BlockID
		}
		if n == target {
			found = current
			return true
		}
		for _, c := range n.Children {
			if walk(c, current) {
				return true
			}
		}
		return false
	}
	if root == nil || !walk(root, "") || found == "" {
		return "", false
	}
	return found, true
}

// visible reports whether a subtree contributes to the flattened text.
func visible(n *Node) bool {
	return n.Kind != NodeScript && n.Kind != NodeStyle
}

func walkText(n *Node, fn func(t *Node) bool) bool {
	if !visible(n) {
		return true
	}
	if n.Kind == NodeText {
		return fn(n)
	}
	for _, c := range n.Children {
		if !walkText(c, fn) {
			return false
		}
	}
	return true
}

// VisibleText flattens the block's text exactly as the offset walk sees it.
func VisibleText(block *Node) string {
	var b strings.Builder
	walkText(block, func(t *Node) bool {
		b.WriteString(t.Text)
		return true
	})
	return b.String()
}

// Offsets translates a (node, local-offset) pair at each end of a native
// selection into absolute character offsets within the block. Returns
// ok=false if either end's node is not reachable from the block via the
// visible walk.
func Offsets(block, startNode *Node, startOff int, endNode *Node, endOff int) (start, end int, ok bool) {
	running := 0
	foundStart, foundEnd := false, false
	walkText(block, func(t *Node) bool {
		if t == startNode {
			start = running + startOff
			foundStart = true
		}
		if t == endNode {
			end = running + endOff
			foundEnd = true
		}
		running += len([]rune(t.Text))
		return !(foundStart && foundEnd)
	})
	if !foundStart || !foundEnd || start > end {
		return 0, 0, false
	}
	return start, end, true
}

// Resolve maps absolute offsets back to text-node spans by re-running the
// same walk. Returns ok=false when either offset falls outside the block's
// visible text; the caller skips the highlight render for that tick.
func Resolve(block *Node, start, end int) (spans []Span, text string, ok bool) {
	if start < 0 || end < start {
		return nil, "", false
	}
	running := 0
	var b strings.Builder
	walkText(block, func(t *Node) bool {
		runes := []rune(t.Text)
		nodeStart := running
		nodeEnd := running + len(runes)
		running = nodeEnd
		if nodeEnd <= start || nodeStart >= end {
			return true
		}
		lo, hi := 0, len(runes)
		if start > nodeStart {
			lo = start - nodeStart
		}
		if end < nodeEnd {
			hi = end - nodeStart
		}
		spans = append(spans, Span{Node: t, Start: lo, End: hi})
		b.WriteString(string(runes[lo:hi]))
		return true
	})
	if end > running || len(spans) == 0 && start != end {
		return nil, "", false
	}
	return spans, b.String(), true
}

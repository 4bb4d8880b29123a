package domain

import "errors"

var ErrBadBlockKind = errors.New("unknown block kind")

type BlockID string

// BlockKind is the closed set of interactive block kinds. Dispatch on it
// only through DispatchBlockKind so unhandled variants cannot slip in.
type BlockKind int

const (
	BlockFlashcard BlockKind = iota
	BlockQuiz
	BlockFillBlank
	BlockMatching
	BlockAudio
	BlockWhiteboard
	BlockText

	blockKindCount // keep last
)

var blockKindNames = [blockKindCount]string{
	BlockFlashcard:  "flashcard",
	BlockQuiz:       "quiz",
	BlockFillBlank:  "fill-blank",
	BlockMatching:   "matching",
	BlockAudio:      "audio",
	BlockWhiteboard: "whiteboard",
	BlockText:       "text",
}

func (k BlockKind) String() string {
	if k < 0 || k >= blockKindCount {
		return "unknown"
	}
	return blockKindNames[k]
}

func (k BlockKind) Valid() bool { return k >= 0 && k < blockKindCount }

func ParseBlockKind(s string) (BlockKind, error) {
	for k, name := range blockKindNames {
		if name == s {
			return BlockKind(k), nil
		}
	}
	return 0, ErrBadBlockKind
}

// BlockKinds returns every variant, in declaration order. Exhaustiveness
// tests iterate this instead of hard-coding the list.
func BlockKinds() []BlockKind {
	out := make([]BlockKind, 0, blockKindCount)
	for k := BlockKind(0); k < blockKindCount; k++ {
		out = append(out, k)
	}
	return out
}

// BlockKindHandlers holds one handler per variant. All fields must be set;
// Dispatch panics on a nil handler, which the exhaustiveness test catches.
type BlockKindHandlers[T any] struct {
	Flashcard  func() T
	Quiz       func() T
	FillBlank  func() T
	Matching   func() T
	Audio      func() T
	Whiteboard func() T
	Text       func() T
}

func DispatchBlockKind[T any](k BlockKind, h BlockKindHandlers[T]) T {
	var fn func() T
	switch k {
	case BlockFlashcard:
		fn = h.Flashcard
	case BlockQuiz:
		fn = h.Quiz
	case BlockFillBlank:
		fn = h.FillBlank
	case BlockMatching:
		fn = h.Matching
	case BlockAudio:
		fn = h.Audio
	case BlockWhiteboard:
		fn = h.Whiteboard
	case BlockText:
		fn = h.Text
	}
	if fn == nil {
		panic("block kind without handler: " + k.String())
	}
	return fn()
}

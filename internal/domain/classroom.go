package domain

import "time"

type (
	RoomName  string
	SessionID string
)

// ClassTiming are the immutable scheduling inputs of one class session.
// Everything derived from them (time left, grace period, forced end) is
// recomputed from wall-clock time, never stored.
type ClassTiming struct {
	StartTime time.Time
	EndTime   time.Time
}

type ClassSession struct {
	ID       SessionID
	Room     RoomName
	Timing   ClassTiming
	LessonID string
}

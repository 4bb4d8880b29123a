// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 64 // runes, not bytes

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
	ErrBadRole     = errors.New("unknown role")
)

type ParticipantID string

// Role is fixed per session; every permission check derives from it.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), nil
	}
	return "", ErrBadRole
}

func (r Role) IsTeacher() bool { return r == RoleTeacher }
func (r Role) IsStudent() bool { return r == RoleStudent }

type Participant struct {
	ID   ParticipantID `json:"id"`
	Name string        `json:"name"`
	Role Role          `json:"role"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(name string, role Role) (*Participant, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{
		ID:   ParticipantID(uuid.NewString()),
		Name: name,
		Role: role,
	}, nil
}

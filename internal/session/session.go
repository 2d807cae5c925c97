package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/internal/domain"
)

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusActive     Status = "active"
	StatusEnding     Status = "ending"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
)

var (
	ErrSessionNotFound   = errors.New("call session not found")
	ErrSessionExists     = errors.New("call session already open")
	ErrInvalidTransition = errors.New("invalid call session transition")
)

var transitions = map[Status][]Status{
	StatusStarting:   {StatusActive, StatusEnding, StatusCompleted},
	StatusActive:     {StatusEnding},
	StatusEnding:     {StatusFinalizing},
	StatusFinalizing: {StatusCompleted},
}

// CallSession is the ephemeral state of one phone call.
type CallSession struct {
	ID             string
	RoomName       string
	PlatformCallID string
	CallerPhone    string
	DialedNumber   string
	TenantID       string // empty on the global line
	TenantName     string
	Settings       config.SessionSettings
	Resolved       bool // TenantID and Settings are known
	StartedAt      time.Time
	Status         Status
	Recording      *domain.RecordingHandle
	LeadID         string
	CallLogID      string

	CallerName    string
	Interest      string
	EquipmentType string
	Intent        string

	StaffAuthenticated bool
	StaffID            string
	StaffName          string
	StaffPermissions   domain.StaffPermissions

	TransferredTo string
	EndReason     string
	EndedAt       time.Time
}

// IsGlobal reports whether the call is on the main marketplace line.
func (s *CallSession) IsGlobal() bool {
	return s.TenantID == ""
}

// Transition moves the session to the next state if the lifecycle allows it.
func (s *CallSession) Transition(to Status) error {
	for _, allowed := range transitions[s.Status] {
		if allowed == to {
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
}

// clone detaches the snapshot from pointer fields owned by the store.
func (s CallSession) clone() CallSession {
	if s.Recording != nil {
		rec := *s.Recording
		s.Recording = &rec
	}
	return s
}

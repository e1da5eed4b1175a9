// Package events carries workflow state changes to live subscribers.
package events

import (
	"context"
	"time"
)

// Type names a committed workflow change.
type Type string

const (
	ProjectCreated       Type = "project.created"
	ProjectStatusChanged Type = "project.status_changed"
	ProposalSubmitted    Type = "proposal.submitted"
	ProposalAccepted     Type = "proposal.accepted"
	ProposalRejected     Type = "proposal.rejected"
	ContractCreated      Type = "contract.created"
	ContractUpdated      Type = "contract.updated"
	ContractDeleted      Type = "contract.deleted"
	MilestoneCreated     Type = "milestone.created"
	MilestoneUpdated     Type = "milestone.updated"
	MilestoneDeleted     Type = "milestone.deleted"
	FileUploaded         Type = "file.uploaded"
	FileDeleted          Type = "file.deleted"
)

// Event is published after the change it describes has committed.
type Event struct {
	Type      Type      `json:"type"`
	ProjectID uint      `json:"project_id"`
	EntityID  uint      `json:"entity_id"`
	ActorID   uint      `json:"actor_id"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events. Implementations must not block the caller for long.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Multi fans an event out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps every published event in memory.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	select {
	case r.ch <- event:
	default:
	}
}

// Events drains and returns what has been recorded so far.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

package transfer

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrItemNotFound      = errors.New("transfer: item not found")
	ErrInvalidTransition = errors.New("transfer: invalid transition")
)

// Status is the lifecycle position of an item.
type Status int

const (
	Pending Status = iota
	Active
	Completed
	Error
	Cancelled
)

var statusNames = [...]string{"pending", "active", "completed", "error", "cancelled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("transfer: unknown status %q", text)
}

// Terminal reports whether no transition other than removal (or retry from Error) exists.
func (s Status) Terminal() bool {
	return s == Completed || s == Error || s == Cancelled
}

// Phase names the kind of work an Active item is doing.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseUploading   Phase = "uploading"
	PhaseDownloading Phase = "downloading"
	PhaseZipping     Phase = "zipping"
	PhaseProcessing  Phase = "processing"
)

// Item is a snapshot of one tracked unit of work. Callers only ever receive copies.
type Item[P, R any] struct {
	ID        string    `json:"id" yaml:"id"`
	Payload   P         `json:"payload" yaml:"payload"`
	Status    Status    `json:"status" yaml:"status"`
	Phase     Phase     `json:"phase,omitempty" yaml:"phase,omitempty"`
	Progress  int       `json:"progress" yaml:"progress"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	Result    R         `json:"result" yaml:"result"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Cloner is implemented by payloads and results holding slices, so snapshots handed
// out by a queue never alias its internal state.
type Cloner[T any] interface {
	Clone() T
}

func cloneValue[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

func (it Item[P, R]) clone() Item[P, R] {
	it.Payload = cloneValue(it.Payload)
	it.Result = cloneValue(it.Result)
	return it
}

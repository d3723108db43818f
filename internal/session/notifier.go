package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind classifies a user-facing notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice is a user-facing message emitted by the manager. The embedding UI
// renders these; the manager never blocks on delivery.
type Notice struct {
	Kind    Kind
	Message string
}

// Notifier receives user-facing notices. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

// LogNotifier writes notices to the structured log. It is the default when no
// notifier is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	switch n.Kind {
	case KindError:
		log.Error().Msg(n.Message)
	default:
		log.Info().Msg(n.Message)
	}
}

// Recorder captures notices for inspection in tests and examples.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the captured notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice, if any.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

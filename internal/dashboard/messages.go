package dashboard

import (
	"encoding/json"
	"time"

	"github.com/steveyegge/tasksync/internal/dates"
	"github.com/steveyegge/tasksync/internal/store"
)

// StatsData summarizes the collection.
type StatsData struct {
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Pending    int       `json:"pending"`
	Overdue    int       `json:"overdue"`
	Source     string    `json:"source"`
	LastSynced time.Time `json:"last_synced"`
}

// SyncCompleteData reports a dashboard-triggered sync.
type SyncCompleteData struct {
	Tasks    int           `json:"tasks"`
	Failed   bool          `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Stats computes StatsData for st at now.
func Stats(st store.State, now time.Time) StatsData {
	s := StatsData{
		Total:      len(st.Tasks),
		Source:     st.Source.String(),
		LastSynced: st.LastSynced,
	}
	for _, t := range st.Tasks {
		if t.Completed {
			s.Completed++
			continue
		}
		s.Pending++
		if dates.IsOverdue(t.DueDate, now) {
			s.Overdue++
		}
	}
	return s
}

func newMessage(typ MessageType, data any, now time.Time) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: now, Data: raw}, nil
}

// stateMessages returns the state and stats messages for st.
func stateMessages(st store.State, now time.Time) []Message {
	var out []Message
	if msg, err := newMessage(MessageTypeState, st, now); err == nil {
		out = append(out, msg)
	}
	if msg, err := newMessage(MessageTypeStats, Stats(st, now), now); err == nil {
		out = append(out, msg)
	}
	return out
}

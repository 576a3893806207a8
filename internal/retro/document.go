// Package retro holds the shared retrospective session document and the
// rules that mutate it. The whole document is the unit of storage and sync:
// every mutation produces a new full document that is persisted and
// broadcast to every connected client.
package retro

import "time"

// Session status values.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusClosed     = "CLOSED"
)

// Action types.
const (
	ActionTypeProposal = "proposal"
	ActionTypeNew      = "new"
)

// Proposal vote directions.
const (
	ProposalVoteUp      = "up"
	ProposalVoteDown    = "down"
	ProposalVoteNeutral = "neutral"
)

// Participant is a member of the session roster. Roster membership is
// sticky: a participant stays listed after disconnecting.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Column is a purely presentational lane that tickets and groups live in.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Ticket is a single brainstormed note. Votes is a multiset of user ids:
// the same user may appear more than once unless oneVotePerTicket is set.
type Ticket struct {
	ID        string              `json:"id"`
	ColumnID  string              `json:"columnId"`
	Text      string              `json:"text"`
	AuthorID  string              `json:"authorId"`
	GroupID   string              `json:"groupId,omitempty"`
	Votes     []string            `json:"votes"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// Group is a cluster of tickets merged during the GROUP phase and voted on
// as a unit. A group with one or zero member tickets does not exist.
type Group struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	ColumnID string   `json:"columnId"`
	Votes    []string `json:"votes"`
}

// Action is an action item. Proposals collect per-user up/down/neutral
// votes until a facilitator promotes them to type "new"; only "new" actions
// survive into the global backlog after the session closes.
type Action struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	AssigneeID    string            `json:"assigneeId,omitempty"`
	Done          bool              `json:"done"`
	Type          string            `json:"type"`
	LinkedID      string            `json:"linkedId,omitempty"`
	ProposalVotes map[string]string `json:"proposalVotes,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Settings carries the facilitator-controlled knobs plus the timer state.
// The timer anchor is a wall-clock instant so every client recomputes the
// remaining time locally instead of counting ticks.
type Settings struct {
	MaxVotes         int    `json:"maxVotes"`
	OneVotePerTicket bool   `json:"oneVotePerTicket"`
	Anonymous        bool   `json:"anonymous"`
	RevealHappiness  bool   `json:"revealHappiness"`
	RevealRoti       bool   `json:"revealRoti"`
	RevealBrainstorm bool   `json:"revealBrainstorm"`
	ColorBy          string `json:"colorBy,omitempty"`
	PanelCollapsed   bool   `json:"panelCollapsed"`

	TimerInitial      int        `json:"timerInitial"`
	TimerSeconds      int        `json:"timerSeconds"`
	TimerRunning      bool       `json:"timerRunning"`
	TimerStartedAt    *time.Time `json:"timerStartedAt,omitempty"`
	TimerAcknowledged bool       `json:"timerAcknowledged"`
}

// Document is the authoritative shared state of one retrospective session.
type Document struct {
	ID                 string         `json:"id"`
	TeamID             string         `json:"teamId"`
	Phase              Phase          `json:"phase"`
	Status             string         `json:"status"`
	Columns            []Column       `json:"columns"`
	Tickets            []Ticket       `json:"tickets"`
	Groups             []Group        `json:"groups"`
	Actions            []Action       `json:"actions"`
	Participants       []Participant  `json:"participants"`
	Happiness          map[string]int `json:"happiness"`
	Roti               map[string]int `json:"roti"`
	FinishedUsers      []string       `json:"finishedUsers"`
	AutoFinishedUsers  []string       `json:"autoFinishedUsers"`
	IcebreakerQuestion string         `json:"icebreakerQuestion"`
	// DiscussionFocusID is only meaningful while Phase == PhaseDiscuss.
	DiscussionFocusID      string    `json:"discussionFocusId,omitempty"`
	Settings               Settings  `json:"settings"`
	OpenActionsSnapshot    []Action  `json:"openActionsSnapshot"`
	HistoryActionsSnapshot []Action  `json:"historyActionsSnapshot"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// NewDocument creates a fresh session document in the initial phase.
func NewDocument(id, teamID string, columns []Column, settings Settings) Document {
	now := time.Now().UTC()
	if settings.MaxVotes <= 0 {
		settings.MaxVotes = 5
	}
	if settings.TimerInitial <= 0 {
		settings.TimerInitial = 300
	}
	settings.TimerSeconds = settings.TimerInitial
	settings.TimerAcknowledged = true
	return Document{
		ID:                id,
		TeamID:            teamID,
		Phase:             PhaseIcebreaker,
		Status:            StatusInProgress,
		Columns:           columns,
		Tickets:           []Ticket{},
		Groups:            []Group{},
		Actions:           []Action{},
		Participants:      []Participant{},
		Happiness:         map[string]int{},
		Roti:              map[string]int{},
		FinishedUsers:     []string{},
		AutoFinishedUsers: []string{},
		Settings:          settings,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Clone returns a deep copy of the document. Mutations always run against a
// clone so a half-applied update is never observable through the cache.
func (d Document) Clone() Document {
	out := d
	out.Columns = append([]Column(nil), d.Columns...)
	out.Tickets = make([]Ticket, len(d.Tickets))
	for i, t := range d.Tickets {
		out.Tickets[i] = t.clone()
	}
	out.Groups = make([]Group, len(d.Groups))
	for i, g := range d.Groups {
		gc := g
		gc.Votes = append([]string(nil), g.Votes...)
		out.Groups[i] = gc
	}
	out.Actions = cloneActions(d.Actions)
	out.OpenActionsSnapshot = cloneActions(d.OpenActionsSnapshot)
	out.HistoryActionsSnapshot = cloneActions(d.HistoryActionsSnapshot)
	out.Participants = append([]Participant(nil), d.Participants...)
	out.Happiness = cloneIntMap(d.Happiness)
	out.Roti = cloneIntMap(d.Roti)
	out.FinishedUsers = append([]string(nil), d.FinishedUsers...)
	out.AutoFinishedUsers = append([]string(nil), d.AutoFinishedUsers...)
	if d.Settings.TimerStartedAt != nil {
		at := *d.Settings.TimerStartedAt
		out.Settings.TimerStartedAt = &at
	}
	return out
}

func (t Ticket) clone() Ticket {
	out := t
	out.Votes = append([]string(nil), t.Votes...)
	if t.Reactions != nil {
		out.Reactions = make(map[string][]string, len(t.Reactions))
		for emoji, users := range t.Reactions {
			out.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return out
}

func cloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		ac := a
		if a.ProposalVotes != nil {
			ac.ProposalVotes = make(map[string]string, len(a.ProposalVotes))
			for user, vote := range a.ProposalVotes {
				ac.ProposalVotes[user] = vote
			}
		}
		out[i] = ac
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TicketByID returns a pointer into d.Tickets, or nil.
func (d *Document) TicketByID(id string) *Ticket {
	for i := range d.Tickets {
		if d.Tickets[i].ID == id {
			return &d.Tickets[i]
		}
	}
	return nil
}

// GroupByID returns a pointer into d.Groups, or nil.
func (d *Document) GroupByID(id string) *Group {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return &d.Groups[i]
		}
	}
	return nil
}

// ColumnByID returns a pointer into d.Columns, or nil.
func (d *Document) ColumnByID(id string) *Column {
	for i := range d.Columns {
		if d.Columns[i].ID == id {
			return &d.Columns[i]
		}
	}
	return nil
}

// ActionByID returns a pointer into d.Actions, or nil.
func (d *Document) ActionByID(id string) *Action {
	for i := range d.Actions {
		if d.Actions[i].ID == id {
			return &d.Actions[i]
		}
	}
	return nil
}

// EnsureParticipant appends p to the roster if the id is not already known.
// Returns true if the roster changed.
func (d *Document) EnsureParticipant(p Participant) bool {
	for _, existing := range d.Participants {
		if existing.ID == p.ID {
			return false
		}
	}
	d.Participants = append(d.Participants, p)
	return true
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func remove(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

package reconcile

import (
	"testing"

	"retroboard/internal/retro"
)

func baseDoc() retro.Document {
	d := retro.NewDocument("s1", "team-1", []retro.Column{{ID: "c1", Title: "Went well"}}, retro.Settings{MaxVotes: 5})
	d.Tickets = []retro.Ticket{
		{ID: "t1", ColumnID: "c1", Text: "pairing", AuthorID: "alice", Votes: []string{}},
		{ID: "t2", ColumnID: "c1", Text: "ci", AuthorID: "bob", Votes: []string{}},
	}
	d.Groups = []retro.Group{{ID: "g1", ColumnID: "c1", Votes: []string{}}}
	return d
}

func TestMergeKeepsOwnJustCastVote(t *testing.T) {
	previous := baseDoc()
	previous.TicketByID("t1").Votes = []string{"alice"}

	// Remote snapshot taken before alice's vote reached the server, but
	// carrying bob's new vote.
	incoming := baseDoc()
	incoming.TicketByID("t1").Votes = []string{"bob"}

	merged := Merge(previous, incoming, EditState{}, "alice")
	votes := merged.TicketByID("t1").Votes
	if len(votes) != 2 {
		t.Fatalf("votes = %v, want bob and alice", votes)
	}
	if count(votes, "alice") != 1 || count(votes, "bob") != 1 {
		t.Fatalf("votes = %v", votes)
	}
}

func TestMergeKeepsOwnRetraction(t *testing.T) {
	previous := baseDoc()
	// alice retracted locally; the stale broadcast still shows her vote.
	incoming := baseDoc()
	incoming.TicketByID("t1").Votes = []string{"alice", "bob"}

	merged := Merge(previous, incoming, EditState{}, "alice")
	votes := merged.TicketByID("t1").Votes
	if count(votes, "alice") != 0 {
		t.Fatalf("votes = %v, retracted vote resurrected", votes)
	}
	if count(votes, "bob") != 1 {
		t.Fatalf("votes = %v, lost bob's vote", votes)
	}
}

func TestMergePreservesVoteMultiplicity(t *testing.T) {
	previous := baseDoc()
	previous.GroupByID("g1").Votes = []string{"alice", "alice"}
	incoming := baseDoc()
	incoming.GroupByID("g1").Votes = []string{"alice", "carol"}

	merged := Merge(previous, incoming, EditState{}, "alice")
	votes := merged.GroupByID("g1").Votes
	if count(votes, "alice") != 2 {
		t.Fatalf("votes = %v, want two of alice's", votes)
	}
	if count(votes, "carol") != 1 {
		t.Fatalf("votes = %v", votes)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	previous := baseDoc()
	previous.TicketByID("t1").Votes = []string{"alice"}
	incoming := baseDoc()
	incoming.TicketByID("t1").Votes = []string{"bob"}

	once := Merge(previous, incoming, EditState{}, "alice")
	twice := Merge(once, incoming, EditState{}, "alice")
	if got, want := twice.TicketByID("t1").Votes, once.TicketByID("t1").Votes; len(got) != len(want) {
		t.Fatalf("second merge changed votes: %v vs %v", got, want)
	}
}

func TestMergeIcebreakerCarveOut(t *testing.T) {
	previous := baseDoc()
	previous.IcebreakerQuestion = "what did you cook this week"
	incoming := baseDoc()
	incoming.IcebreakerQuestion = "stale remote text"

	open := Merge(previous, incoming, EditState{IcebreakerEditing: true}, "alice")
	if open.IcebreakerQuestion != previous.IcebreakerQuestion {
		t.Fatal("local draft lost while the debounce window is open")
	}

	closed := Merge(previous, incoming, EditState{}, "alice")
	if closed.IcebreakerQuestion != incoming.IcebreakerQuestion {
		t.Fatal("remote value must win once the window closes")
	}
}

func TestMergeEditingTextCarveOuts(t *testing.T) {
	previous := baseDoc()
	previous.TicketByID("t1").Text = "half-typed edit"
	previous.GroupByID("g1").Title = "draft title"
	incoming := baseDoc()
	incoming.TicketByID("t1").Text = "remote text"
	incoming.GroupByID("g1").Title = "remote title"

	merged := Merge(previous, incoming, EditState{EditingTicketID: "t1", EditingGroupID: "g1"}, "alice")
	if got := merged.TicketByID("t1").Text; got != "half-typed edit" {
		t.Fatalf("ticket text = %q", got)
	}
	if got := merged.GroupByID("g1").Title; got != "draft title" {
		t.Fatalf("group title = %q", got)
	}
	// Untouched tickets follow the broadcast.
	if got := merged.TicketByID("t2").Text; got != "ci" {
		t.Fatalf("t2 text = %q", got)
	}
}

func TestMergeEditedTicketDeletedRemotely(t *testing.T) {
	previous := baseDoc()
	incoming := baseDoc()
	incoming.Tickets = incoming.Tickets[1:]

	merged := Merge(previous, incoming, EditState{EditingTicketID: "t1"}, "alice")
	if merged.TicketByID("t1") != nil {
		t.Fatal("a remotely deleted ticket must stay deleted")
	}
}

func TestMergeOwnBallotsSurvive(t *testing.T) {
	previous := baseDoc()
	previous.Happiness = map[string]int{"alice": 4}
	previous.Roti = map[string]int{"alice": 5}
	incoming := baseDoc()
	incoming.Happiness = map[string]int{"bob": 2}

	merged := Merge(previous, incoming, EditState{}, "alice")
	if merged.Happiness["alice"] != 4 || merged.Happiness["bob"] != 2 {
		t.Fatalf("happiness = %v", merged.Happiness)
	}
	if merged.Roti["alice"] != 5 {
		t.Fatalf("roti = %v", merged.Roti)
	}
}

func TestMergeSharedScalarIsLastWriterWins(t *testing.T) {
	previous := baseDoc()
	previous.Phase = retro.PhaseVote
	incoming := baseDoc()
	incoming.Phase = retro.PhaseDiscuss

	merged := Merge(previous, incoming, EditState{}, "alice")
	if merged.Phase != retro.PhaseDiscuss {
		t.Fatal("shared fields without a carve-out follow the broadcast")
	}
}

func count(list []string, value string) int {
	n := 0
	for _, v := range list {
		if v == value {
			n++
		}
	}
	return n
}

package retro

import (
	"errors"
	"testing"
)

func voteDoc(t *testing.T) Document {
	t.Helper()
	d := brainstormDoc(t)
	mustAddTicket(t, &d, "t1", "col-good", "pairing", "alice")
	mustAddTicket(t, &d, "t2", "col-good", "ci speed", "bob")
	mustAddTicket(t, &d, "t3", "col-bad", "flaky tests", "bob")
	if err := d.SetPhase(PhaseVote); err != nil {
		t.Fatalf("set phase: %v", err)
	}
	return d
}

func TestVoteBudgetEnforced(t *testing.T) {
	d := voteDoc(t)
	for i := 0; i < 3; i++ {
		if err := d.CastTicketVote("t1", "alice"); err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
	}
	if err := d.CastTicketVote("t2", "alice"); !errors.Is(err, ErrVoteBudget) {
		t.Fatalf("4th vote err = %v, want ErrVoteBudget", err)
	}
	if got := d.VotesLeft("alice"); got != 0 {
		t.Fatalf("votes left = %d, want 0", got)
	}
	// Another user's budget is independent.
	if err := d.CastTicketVote("t2", "bob"); err != nil {
		t.Fatalf("bob vote: %v", err)
	}
}

func TestVoteRetractReopensBudget(t *testing.T) {
	d := voteDoc(t)
	for i := 0; i < 3; i++ {
		if err := d.CastTicketVote("t1", "alice"); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if err := d.RetractTicketVote("t1", "alice"); err != nil {
		t.Fatalf("retract: %v", err)
	}
	if got := d.VotesLeft("alice"); got != 1 {
		t.Fatalf("votes left after retract = %d, want 1", got)
	}
	if got := len(d.TicketByID("t1").Votes); got != 2 {
		t.Fatalf("ticket votes = %d, want 2", got)
	}
}

func TestOneVotePerTicketRejectsDuplicate(t *testing.T) {
	d := voteDoc(t)
	d.Settings.OneVotePerTicket = true
	if err := d.CastTicketVote("t1", "alice"); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := d.CastTicketVote("t1", "alice"); !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateVote", err)
	}
}

func TestVoteRequiresVotePhase(t *testing.T) {
	d := brainstormDoc(t)
	mustAddTicket(t, &d, "t1", "col-good", "pairing", "alice")
	if err := d.CastTicketVote("t1", "alice"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("err = %v, want ErrWrongPhase", err)
	}
}

func TestApplyVoteSettingsTrimsTicketsBeforeGroups(t *testing.T) {
	d := voteDoc(t)
	d.Groups = append(d.Groups, Group{ID: "g1", ColumnID: "col-good", Votes: []string{"alice", "alice"}})
	d.TicketByID("t1").Votes = []string{"alice", "alice"}
	// alice holds 4 votes; shrinking the budget to 3 must drop a ticket
	// vote first.
	d.ApplyVoteSettings(3, false)
	if got := d.VoteCount("alice"); got != 3 {
		t.Fatalf("vote count after trim = %d, want 3", got)
	}
	if got := len(d.TicketByID("t1").Votes); got != 1 {
		t.Fatalf("ticket votes = %d, want 1", got)
	}
	if got := len(d.GroupByID("g1").Votes); got != 2 {
		t.Fatalf("group votes = %d, want 2", got)
	}
}

func TestApplyVoteSettingsCollapsesDuplicates(t *testing.T) {
	d := voteDoc(t)
	d.TicketByID("t1").Votes = []string{"alice", "alice", "bob"}
	d.ApplyVoteSettings(3, true)
	if got := d.TicketByID("t1").Votes; len(got) != 2 {
		t.Fatalf("votes after dedupe = %v, want [alice bob]", got)
	}
}

func TestAutoFinishLifecycle(t *testing.T) {
	d := voteDoc(t)
	d.Settings.MaxVotes = 1
	if err := d.CastTicketVote("t1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}

	d.MarkAutoFinished("alice")
	if !contains(d.FinishedUsers, "alice") || !contains(d.AutoFinishedUsers, "alice") {
		t.Fatal("alice should be auto-finished")
	}

	// Budget reopens: the automatic mark clears.
	if err := d.RetractTicketVote("t1", "alice"); err != nil {
		t.Fatalf("retract: %v", err)
	}
	d.UnfinishIfAuto("alice")
	if contains(d.FinishedUsers, "alice") {
		t.Fatal("auto-finish should clear when budget reopens")
	}
}

func TestManualFinishSurvivesBudgetReopen(t *testing.T) {
	d := voteDoc(t)
	d.SetFinished("alice", true)
	d.UnfinishIfAuto("alice")
	if !contains(d.FinishedUsers, "alice") {
		t.Fatal("manual finish must not be cleared automatically")
	}
}

func TestMarkAutoFinishedSkipsWhenBudgetReopened(t *testing.T) {
	d := voteDoc(t)
	// Scheduled while the budget was exhausted, fires after a retract.
	d.MarkAutoFinished("alice")
	if len(d.FinishedUsers) != 0 {
		t.Fatal("auto-finish must re-check the budget at fire time")
	}
}

package retro

// MaskForViewer returns a copy of the document shaped for one viewer:
//
//   - during BRAINSTORM, other authors' ticket text is hidden until the
//     facilitator flips revealBrainstorm; the author always sees their own
//   - happiness and roti ballots collapse to the viewer's own entry until
//     the matching reveal flag is set
//   - with anonymous mode on, author ids are stripped from tickets the
//     viewer did not write
//
// The facilitator is masked like everyone else: reveal is an explicit
// toggle, not a role privilege.
func (d Document) MaskForViewer(viewerID string) Document {
	out := d.Clone()
	if out.Phase == PhaseBrainstorm && !out.Settings.RevealBrainstorm {
		for i := range out.Tickets {
			if out.Tickets[i].AuthorID != viewerID {
				out.Tickets[i].Text = ""
			}
		}
	}
	if out.Settings.Anonymous {
		for i := range out.Tickets {
			if out.Tickets[i].AuthorID != viewerID {
				out.Tickets[i].AuthorID = ""
			}
		}
	}
	if !out.Settings.RevealHappiness {
		out.Happiness = ownEntry(out.Happiness, viewerID)
	}
	if !out.Settings.RevealRoti {
		out.Roti = ownEntry(out.Roti, viewerID)
	}
	return out
}

func ownEntry(ballots map[string]int, userID string) map[string]int {
	out := map[string]int{}
	if v, ok := ballots[userID]; ok {
		out[userID] = v
	}
	return out
}

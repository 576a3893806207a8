package retro

// CastHappiness records the user's 1-5 happiness value during WELCOME.
// Per-user singleton: re-casting overwrites.
func (d *Document) CastHappiness(userID string, value int) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseWelcome {
		return ErrWrongPhase
	}
	if value < 1 || value > 5 {
		return ErrInvalidRating
	}
	if d.Happiness == nil {
		d.Happiness = map[string]int{}
	}
	d.Happiness[userID] = value
	return nil
}

// CastRoti records the user's 1-5 return-on-time-invested value during
// CLOSE. Same singleton semantics as happiness.
func (d *Document) CastRoti(userID string, value int) error {
	if d.Phase != PhaseClose {
		return ErrWrongPhase
	}
	if value < 1 || value > 5 {
		return ErrInvalidRating
	}
	if d.Roti == nil {
		d.Roti = map[string]int{}
	}
	d.Roti[userID] = value
	return nil
}

// Histogram buckets a ballot map into counts per value 1-5.
func Histogram(ballots map[string]int) [5]int {
	var out [5]int
	for _, v := range ballots {
		if v >= 1 && v <= 5 {
			out[v-1]++
		}
	}
	return out
}

package main

// Flag is one team's capture flag. A flag belongs to a team, sits somewhere
// on the field or in the hands of an opposing player, and scores when carried
// to its goal — the other team's home. The goal coordinate never changes
// after construction.
type Flag struct {
	ID   int
	Team Team
	Pos  Coord // ground position; stale while held
	Goal Coord
	// HeldBy is the ID of the carrying player, 0 when on the ground. At most
	// one holder at any instant; take/drop happen inside session actions.
	HeldBy int
}

// NewFlag creates a team's flag at its start position.
func NewFlag(id int, team Team, sp *SpawnPlanner) *Flag {
	return &Flag{
		ID:   id,
		Team: team,
		Pos:  sp.FlagStart(team),
		Goal: sp.FlagGoal(team),
	}
}

// Held reports whether the flag is currently carried.
func (f *Flag) Held() bool {
	return f.HeldBy != 0
}

// Take attaches the flag to a carrier. Fails if already held or if the
// carrier is on the flag's own team.
func (f *Flag) Take(p *PlayerSession) bool {
	if f.Held() || p.Team == f.Team {
		return false
	}
	f.HeldBy = p.ID
	return true
}

// Drop releases the flag at the given ground position.
func (f *Flag) Drop(at Coord) {
	f.HeldBy = 0
	f.Pos = at
}

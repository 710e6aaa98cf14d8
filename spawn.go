package main

import "math/rand"

// SpawnPlanner computes deterministic spawn, respawn and flag positions from
// the team, the map dimensions and the team roster size. Determinism matters:
// clients run the same placement math, and respawns must stay within a
// bounded band of the team anchor.
type SpawnPlanner struct {
	tun *Tuning
}

// NewSpawnPlanner creates a planner for the given tuning.
func NewSpawnPlanner(tun *Tuning) *SpawnPlanner {
	return &SpawnPlanner{tun: tun}
}

// Anchor returns the canonical coordinate a team's spawns and flag are
// computed around. Teams sit on opposite sides of the vertical midline.
func (sp *SpawnPlanner) Anchor(team Team) Coord {
	x := sp.tun.MapWidth * 0.25
	if team == TeamBlue {
		x = sp.tun.MapWidth * 0.75
	}
	return Coord{X: x, Y: sp.tun.MapHeight * 0.5}
}

// SpawnPosition places teammate index (0-based) of a team of teamSize along
// a fixed-width horizontal line centered on the team anchor. A single-member
// team spawns exactly at the anchor.
func (sp *SpawnPlanner) SpawnPosition(team Team, index, teamSize int) Coord {
	anchor := sp.Anchor(team)
	if teamSize <= 1 {
		return anchor
	}
	step := sp.tun.SpawnLineWidth / float64(teamSize-1)
	return Coord{
		X: anchor.X - sp.tun.SpawnLineWidth/2 + step*float64(index),
		Y: anchor.Y,
	}
}

// RespawnPosition picks a pseudo-random slot on the team's spawn line so
// repeated respawns cannot be camped at one exact point.
func (sp *SpawnPlanner) RespawnPosition(team Team) Coord {
	return sp.SpawnPosition(team, rand.Intn(sp.tun.RespawnSlots), sp.tun.RespawnSlots)
}

// FlagStart returns where a team's own flag sits at match start.
func (sp *SpawnPlanner) FlagStart(team Team) Coord {
	return sp.Anchor(team)
}

// FlagGoal returns where a team's flag must be carried to score: the
// opposing team's flag start. Flags are carried toward the enemy's home.
func (sp *SpawnPlanner) FlagGoal(team Team) Coord {
	return sp.FlagStart(team.Opponent())
}

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Team identifies one of the two snowman teams.
type Team int

const (
	TeamRed  Team = 0
	TeamBlue Team = 1
	NumTeams      = 2

	// NoTeam marks a drawn match outcome.
	NoTeam Team = -1
)

func (t Team) String() string {
	switch t {
	case TeamRed:
		return "red"
	case TeamBlue:
		return "blue"
	}
	return "none"
}

// Opponent returns the other team.
func (t Team) Opponent() Team {
	return (t + 1) % NumTeams
}

// Tuning holds every gameplay constant that is part of the observable
// client/server contract. The values are tuned, not derived; they are kept
// as configuration so client builds can be matched against a server without
// recompiling. All delays are milliseconds.
type Tuning struct {
	MapName   string  `yaml:"map_name"`
	MapWidth  float64 `yaml:"map_width"`
	MapHeight float64 `yaml:"map_height"`

	// Anti-cheat: max squared distance between a client-claimed position
	// and the dead-reckoned server position before the claim is rejected.
	PositionToleranceSq float64 `yaml:"position_tolerance_sq"`

	MaxHP        int `yaml:"max_hp"`
	AttackDamage int `yaml:"attack_damage"`

	// Attack range in units: AttackRangeBase + AttackRangePerHP*hp.
	AttackRangeBase  float64 `yaml:"attack_range_base"`
	AttackRangePerHP float64 `yaml:"attack_range_per_hp"`

	// Movement speed in units/second: MoveSpeedMin + MoveSpeedPerHP*hp.
	// Wounded snowmen are smaller and slower.
	MoveSpeedMin   float64 `yaml:"move_speed_min"`
	MoveSpeedPerHP float64 `yaml:"move_speed_per_hp"`

	GrabRadius float64 `yaml:"grab_radius"`
	GoalRadius float64 `yaml:"goal_radius"`

	// Spawn layout: teammates spread along a horizontal line of this width
	// centered on the team anchor. Respawns pick one of RespawnSlots
	// pseudo-random positions on the same line.
	SpawnLineWidth float64 `yaml:"spawn_line_width"`
	RespawnSlots   int     `yaml:"respawn_slots"`

	RespawnDelayMs  int64 `yaml:"respawn_delay_ms"`
	TeardownDelayMs int64 `yaml:"teardown_delay_ms"`

	RobotTickMs    int64 `yaml:"robot_tick_ms"`
	RobotJitterMs  int64 `yaml:"robot_jitter_ms"`
	RobotBackoffMs int64 `yaml:"robot_backoff_ms"`

	// Matchmaking: a session holds PlayersPerSession snowmen total; the hub
	// waits for HumansPerSession real players and fills the rest with robots.
	PlayersPerSession int `yaml:"players_per_session"`
	HumansPerSession  int `yaml:"humans_per_session"`
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		MapName:             "tundra",
		MapWidth:            96,
		MapHeight:           96,
		PositionToleranceSq: 4.0,
		MaxHP:               100,
		AttackDamage:        30,
		AttackRangeBase:     1.0,
		AttackRangePerHP:    0.1,
		MoveSpeedMin:        1.0,
		MoveSpeedPerHP:      0.08,
		GrabRadius:          1.5,
		GoalRadius:          2.0,
		SpawnLineWidth:      10.0,
		RespawnSlots:        8,
		RespawnDelayMs:      10_000,
		TeardownDelayMs:     3_000,
		RobotTickMs:         2_000,
		RobotJitterMs:       500,
		RobotBackoffMs:      4_000,
		PlayersPerSession:   4,
		HumansPerSession:    2,
	}
}

// LoadTuning reads a YAML override file on top of the defaults. A missing
// path returns the defaults unchanged.
func LoadTuning(path string) (Tuning, error) {
	tun := DefaultTuning()
	if path == "" {
		return tun, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tun, nil
		}
		return tun, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tun); err != nil {
		return tun, fmt.Errorf("parse tuning: %w", err)
	}
	if err := tun.Validate(); err != nil {
		return tun, err
	}
	return tun, nil
}

// Validate rejects configs the simulation cannot run with.
func (t Tuning) Validate() error {
	if t.MapWidth <= 0 || t.MapHeight <= 0 {
		return fmt.Errorf("tuning: map dimensions must be positive")
	}
	if t.MaxHP <= 0 || t.AttackDamage <= 0 {
		return fmt.Errorf("tuning: max_hp and attack_damage must be positive")
	}
	if t.PlayersPerSession < NumTeams {
		return fmt.Errorf("tuning: players_per_session must be at least %d", NumTeams)
	}
	if t.HumansPerSession < 1 || t.HumansPerSession > t.PlayersPerSession {
		return fmt.Errorf("tuning: humans_per_session out of range")
	}
	if t.PositionToleranceSq <= 0 {
		return fmt.Errorf("tuning: position_tolerance_sq must be positive")
	}
	return nil
}

// TeamCap returns the player cap for a team: total slots divided evenly,
// with the remainder assigned to the last team.
func (t Tuning) TeamCap(team Team) int {
	cap := t.PlayersPerSession / NumTeams
	if int(team) == NumTeams-1 {
		cap += t.PlayersPerSession % NumTeams
	}
	return cap
}

// MoveRate returns movement speed in units per millisecond for the given
// health. Part of the dead-reckoning contract shared with clients.
func (t Tuning) MoveRate(hp int) float64 {
	if hp < 0 {
		hp = 0
	}
	return (t.MoveSpeedMin + t.MoveSpeedPerHP*float64(hp)) / 1000.0
}

// AttackRange returns attack reach in units for the given health. Bigger
// snowmen throw farther.
func (t Tuning) AttackRange(hp int) float64 {
	if hp < 0 {
		hp = 0
	}
	return t.AttackRangeBase + t.AttackRangePerHP*float64(hp)
}

func (t Tuning) RespawnDelay() time.Duration  { return time.Duration(t.RespawnDelayMs) * time.Millisecond }
func (t Tuning) TeardownDelay() time.Duration { return time.Duration(t.TeardownDelayMs) * time.Millisecond }
func (t Tuning) RobotBackoff() time.Duration  { return time.Duration(t.RobotBackoffMs) * time.Millisecond }

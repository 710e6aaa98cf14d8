package main

// PlayerState is the lifecycle state of one snowman.
type PlayerState int

const (
	StateNone    PlayerState = iota // pre-join / post-teardown
	StateStopped                    // joined, idle
	StateMoving
	StateDead
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateMoving:
		return "moving"
	case StateDead:
		return "dead"
	}
	return "none"
}

// PlayerSession is the authoritative per-participant state. Clients (and
// robots) report intent; every report is validated against the dead-reckoned
// expected position before anything is committed. All mutating methods are
// unexported and must run under the owning GameSession's lock — GameSession
// and the scheduled tasks are the only entry points.
type PlayerSession struct {
	ID   int
	Name string
	Team Team
	HP   int

	// Kinematic model: the session is at start when not moving, and moving
	// from start toward dest since timestamp (ms) when state is Moving.
	start     Coord
	dest      Coord
	timestamp int64
	state     PlayerState

	// Held flag ID, 0 when empty-handed.
	flagID int

	// Ready signal received, counted toward the start barrier.
	ready bool

	client Broadcaster // nil for robots
	game   *GameSession

	// Account link for persisted stats; 0 for guests and robots.
	authID int64

	// Per-match counters, flushed to the database at endGame.
	kills    int
	deaths   int
	captures int
}

// NewPlayerSession creates a session before team assignment. A nil client
// makes a robot-driven session.
func NewPlayerSession(name string, client Broadcaster) *PlayerSession {
	return &PlayerSession{Name: name, client: client}
}

// Human reports whether a live network channel backs this session.
func (p *PlayerSession) Human() bool {
	return p.client != nil
}

// State returns the current lifecycle state.
func (p *PlayerSession) State() PlayerState {
	return p.state
}

// HeldFlag returns the held flag ID, 0 when none.
func (p *PlayerSession) HeldFlag() int {
	return p.flagID
}

// ExpectedPosition computes where the server believes this snowman is at
// `now` (ms) without waiting for a new client report. Pure: no side effects.
// Clients run the identical formula, so both sides converge between reports.
func (p *PlayerSession) ExpectedPosition(now int64) Coord {
	if p.state != StateMoving {
		return p.start
	}
	elapsed := now - p.timestamp
	if elapsed <= 0 {
		return p.start
	}
	total := p.start.Dist(p.dest)
	if total == 0 {
		return p.start
	}
	travelled := p.game.tun.MoveRate(p.HP) * float64(elapsed)
	if travelled >= total {
		// Never overshoot the destination
		return p.dest
	}
	return p.start.Lerp(p.dest, travelled/total)
}

// checkClaim is the anti-cheat boundary: compares a client-claimed position
// against the dead-reckoned one. On failure the session is snapped to the
// server's own belief and a stop correction is broadcast; the claimed intent
// is discarded.
func (p *PlayerSession) checkClaim(now int64, claimed Coord) bool {
	expected := p.ExpectedPosition(now)
	if claimed.DistSq(expected) < p.game.tun.PositionToleranceSq {
		return true
	}
	p.stopAt(now, expected)
	p.game.channel.SendAll(Envelope{T: MsgStop, Data: StopMsg{ID: p.ID, X: expected.X, Y: expected.Y}})
	return false
}

// stopAt pins the session at pos. Dead and None states are preserved.
func (p *PlayerSession) stopAt(now int64, pos Coord) {
	p.start = pos
	p.dest = pos
	p.timestamp = now
	if p.state == StateMoving {
		p.state = StateStopped
	}
}

// move validates and commits a movement report. The requested end point is
// trimmed against static geometry before committing.
func (p *PlayerSession) move(now int64, start, end Coord) {
	if p.state == StateDead || p.state == StateNone {
		return
	}
	if !p.checkClaim(now, start) {
		return
	}
	trimmed := p.game.oracle.TrimPath(start, end)
	p.start = start
	p.dest = trimmed
	p.timestamp = now
	p.state = StateMoving
	p.game.channel.SendAll(Envelope{T: MsgMoved, Data: MovedMsg{
		ID: p.ID, SX: start.X, SY: start.Y, EX: trimmed.X, EY: trimmed.Y,
	}})
}

// attack validates and resolves a snowball throw. The attacker always stops
// in place once the position claim passes; the outcome is broadcast even on
// a miss (damage 0) so every client plays the same throw animation.
func (p *PlayerSession) attack(now int64, targetID int, pos Coord) {
	if p.state == StateDead || p.state == StateNone {
		return
	}
	if targetID == p.ID {
		return
	}
	if !p.checkClaim(now, pos) {
		return
	}
	target := p.game.players[targetID]
	if target == nil {
		// Target already removed; stale reference, keep the world as is
		return
	}

	p.stopAt(now, pos)

	damage := 0
	targetPos := target.ExpectedPosition(now)
	reach := p.game.tun.AttackRange(p.HP)
	inRange := pos.DistSq(targetPos) <= reach*reach
	hittable := target.state == StateStopped || target.state == StateMoving

	if inRange && hittable && p.game.oracle.LineIsClear(pos, targetPos) {
		target.stopAt(now, targetPos)
		damage = p.game.tun.AttackDamage
		target.HP -= damage
		if target.HP <= 0 {
			target.HP = 0
			p.kills++
			target.die(now)
			if p.game.analytics != nil {
				p.game.analytics.Track(EvtPlayerKill, p.authID, p.game.ID, "")
			}
		}
	}

	p.game.channel.SendAll(Envelope{T: MsgAttacked, Data: AttackedMsg{
		Attacker: p.ID, Target: targetID, Damage: damage, HP: target.HP,
	}})
}

// die transitions to Dead, drops any held flag where the snowman fell, and
// schedules the respawn task.
func (p *PlayerSession) die(now int64) {
	p.state = StateDead
	p.deaths++
	p.dropFlag(p.start)
	p.game.scheduleRespawn(p.ID)
}

// dropFlag releases the held flag (if any) at the given position and
// broadcasts the drop.
func (p *PlayerSession) dropFlag(at Coord) {
	if p.flagID == 0 {
		return
	}
	f := p.game.flags[p.flagID]
	p.flagID = 0
	if f == nil {
		return
	}
	f.Drop(at)
	p.game.channel.SendAll(Envelope{T: MsgFlagDrop, Data: FlagDropMsg{
		FlagID: f.ID, X: at.X, Y: at.Y,
	}})
}

// grabFlag validates and resolves a flag pickup attempt.
func (p *PlayerSession) grabFlag(now int64, flagID int, pos Coord) {
	if p.state == StateDead || p.state == StateNone {
		return
	}
	if p.flagID != 0 {
		return
	}
	f := p.game.flags[flagID]
	if f == nil || f.Held() || f.Team == p.Team {
		return
	}
	if !p.checkClaim(now, pos) {
		return
	}
	if pos.DistSq(f.Pos) > p.game.tun.GrabRadius*p.game.tun.GrabRadius {
		return
	}
	if !f.Take(p) {
		return
	}
	p.flagID = f.ID
	p.game.channel.SendAll(Envelope{T: MsgAttach, Data: AttachMsg{
		FlagID: f.ID, PlayerID: p.ID,
	}})
	if p.game.analytics != nil {
		p.game.analytics.Track(EvtFlagGrab, p.authID, p.game.ID, "")
	}
}

// score validates a flag delivery. On success the owning session ends with
// a win for the scorer's team; the caller sees true exactly once, further
// operations no-op because the session is ending.
func (p *PlayerSession) score(now int64, pos Coord) bool {
	if p.state == StateDead || p.state == StateNone {
		return false
	}
	if p.flagID == 0 {
		return false
	}
	f := p.game.flags[p.flagID]
	if f == nil {
		p.flagID = 0
		return false
	}
	if !p.checkClaim(now, pos) {
		return false
	}
	if pos.DistSq(f.Goal) > p.game.tun.GoalRadius*p.game.tun.GoalRadius {
		return false
	}
	p.captures++
	if p.game.analytics != nil {
		p.game.analytics.Track(EvtFlagCapture, p.authID, p.game.ID, "")
	}
	return p.game.endGameLocked(p.Team, false)
}

// respawn restores a dead snowman at a fresh spawn slot. Runs as a scheduled
// task; a session that ended in the meantime never gets here (lookup-or-noop
// in the task body).
func (p *PlayerSession) respawn() {
	if p.state != StateDead {
		return
	}
	p.HP = p.game.tun.MaxHP
	pos := p.game.planner.RespawnPosition(p.Team)
	p.start = pos
	p.dest = pos
	p.timestamp = nowMillis()
	p.state = StateStopped
	p.game.channel.SendAll(Envelope{T: MsgRespawn, Data: RespawnMsg{
		ID: p.ID, X: pos.X, Y: pos.Y, HP: p.HP,
	}})
}

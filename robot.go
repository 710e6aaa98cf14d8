package main

import (
	"math/rand"
	"time"
)

const (
	// Probability per tick of pursuing the enemy flag instead of a fight.
	robotFlagBias = 0.5
	// Probability of a random sidestep while carrying the flag, to shake
	// off pursuers and path around obstacles.
	robotJukeChance = 0.25
	robotJukeSpread = 6.0 // units of lateral offset
)

// robotNames used when filling a session with synthetic players.
var robotNames = []string{
	"Frosty", "Powder", "Slush", "Blizzard", "Icicle", "Flurry",
	"Drift", "Avalanche", "Sleet", "Tundra", "Glacier", "Chill",
}

// RobotName returns a display name for the i-th robot of a session.
func RobotName(i int) string {
	return robotNames[i%len(robotNames)]
}

// RobotController drives one channel-less PlayerSession through the same
// validated move/attack/grab/score contract a real client uses. It has no
// privileged API: every decision is expressed as an honest client report
// from the robot's own dead-reckoned position. A self-rescheduling task is
// the only thing keeping it alive.
type RobotController struct {
	g        *GameSession
	playerID int

	// Target list, built lazily on the first tick after the start barrier
	// so late joiners are included.
	targets   []int // enemy player IDs
	enemyFlag int
	built     bool
}

// NewRobotController wraps an already-added robot session.
func NewRobotController(g *GameSession, playerID int) *RobotController {
	return &RobotController{g: g, playerID: playerID}
}

// Start schedules the first decision tick.
func (r *RobotController) Start() {
	r.reschedule(r.tickDelay())
}

func (r *RobotController) tickDelay() time.Duration {
	jitter := time.Duration(rand.Int63n(2*r.g.tun.RobotJitterMs+1)-r.g.tun.RobotJitterMs) * time.Millisecond
	return time.Duration(r.g.tun.RobotTickMs)*time.Millisecond + jitter
}

func (r *RobotController) reschedule(d time.Duration) {
	r.g.sched.Schedule(d, r.tick)
}

// tick makes one decision. Runs under the session lock like every other
// action; if the session is gone the robot dies with it (no reschedule).
func (r *RobotController) tick() {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.torndown || g.ending {
		return
	}
	p := g.players[r.playerID]
	if p == nil {
		return
	}
	if !g.started || p.state == StateDead {
		r.reschedule(g.tun.RobotBackoff())
		return
	}

	if !r.built {
		r.build(p)
	}

	now := nowMillis()
	pos := p.ExpectedPosition(now)

	switch {
	case p.flagID != 0:
		r.carryFlag(p, now, pos)
	case r.enemyFlag != 0 && r.flagUp() && rand.Float64() < robotFlagBias:
		r.chaseFlag(p, now, pos)
	default:
		r.fight(p, now, pos)
	}

	r.reschedule(r.tickDelay())
}

// build collects every non-teammate and the opposing flag.
func (r *RobotController) build(p *PlayerSession) {
	r.targets = r.targets[:0]
	for id, other := range r.g.players {
		if other.Team != p.Team {
			r.targets = append(r.targets, id)
		}
	}
	for id, f := range r.g.flags {
		if f.Team != p.Team {
			r.enemyFlag = id
		}
	}
	r.built = true
}

func (r *RobotController) flagUp() bool {
	f := r.g.flags[r.enemyFlag]
	return f != nil && !f.Held()
}

// carryFlag heads for the goal, scoring when close and juking occasionally.
func (r *RobotController) carryFlag(p *PlayerSession, now int64, pos Coord) {
	f := r.g.flags[p.flagID]
	if f == nil {
		return
	}
	if pos.DistSq(f.Goal) <= r.g.tun.GoalRadius*r.g.tun.GoalRadius {
		p.score(now, pos)
		return
	}
	dest := f.Goal
	if rand.Float64() < robotJukeChance {
		dest.X += (rand.Float64()*2 - 1) * robotJukeSpread
		dest.Y += (rand.Float64()*2 - 1) * robotJukeSpread
		dest.X = Clamp(dest.X, 0, r.g.tun.MapWidth)
		dest.Y = Clamp(dest.Y, 0, r.g.tun.MapHeight)
	}
	p.move(now, pos, dest)
}

// chaseFlag moves toward the enemy flag, grabbing it when in reach.
func (r *RobotController) chaseFlag(p *PlayerSession, now int64, pos Coord) {
	f := r.g.flags[r.enemyFlag]
	if f == nil {
		return
	}
	if pos.DistSq(f.Pos) <= r.g.tun.GrabRadius*r.g.tun.GrabRadius {
		p.grabFlag(now, f.ID, pos)
		return
	}
	p.move(now, pos, f.Pos)
}

// fight picks a random living enemy: throw if in range, close in otherwise.
func (r *RobotController) fight(p *PlayerSession, now int64, pos Coord) {
	alive := make([]*PlayerSession, 0, len(r.targets))
	for _, id := range r.targets {
		t := r.g.players[id]
		if t != nil && (t.state == StateStopped || t.state == StateMoving) {
			alive = append(alive, t)
		}
	}
	if len(alive) == 0 {
		return
	}
	target := alive[rand.Intn(len(alive))]
	targetPos := target.ExpectedPosition(now)
	reach := r.g.tun.AttackRange(p.HP)
	if pos.DistSq(targetPos) <= reach*reach {
		p.attack(now, target.ID, pos)
		return
	}
	p.move(now, pos, targetPos)
}

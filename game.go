package main

import (
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Broadcaster is the outbound side of one participant's connection.
// Implemented by *Client; tests substitute a mock.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Channel is the session's logical multicast group. Only human participants
// join it; robots see the world through the same session they mutate.
// Not self-locking: the owning GameSession's mutex guards it.
type Channel struct {
	members map[int]Broadcaster // playerID -> connection
}

func newChannel() *Channel {
	return &Channel{members: make(map[int]Broadcaster)}
}

func (ch *Channel) Join(playerID int, b Broadcaster) {
	ch.members[playerID] = b
}

func (ch *Channel) Leave(playerID int) {
	delete(ch.members, playerID)
}

// Send delivers a message to one participant only. Used for the map/roster
// handshake, which must be observed before any broadcast traffic.
func (ch *Channel) Send(playerID int, msg Envelope) {
	if b, ok := ch.members[playerID]; ok {
		b.SendJSON(msg)
	}
}

// SendBinaryTo delivers a msgpack frame to one participant.
func (ch *Channel) SendBinaryTo(playerID int, data []byte) {
	if b, ok := ch.members[playerID]; ok {
		b.SendBinary(data)
	}
}

// SendAll broadcasts to every joined participant.
func (ch *Channel) SendAll(msg Envelope) {
	for _, b := range ch.members {
		b.SendJSON(msg)
	}
}

func (ch *Channel) destroy() {
	ch.members = nil
}

// GameSession owns the snowmen and flags of one match: team balancing, the
// start barrier, the broadcast channel, end-of-game and teardown. One mutex
// serializes every action and scheduled task against the session, so no two
// actions interleave at sub-action granularity; different sessions run in
// parallel.
type GameSession struct {
	ID string

	mu      sync.Mutex
	tun     *Tuning
	oracle  CollisionOracle
	planner *SpawnPlanner
	sched   Scheduler
	channel *Channel

	players map[int]*PlayerSession
	flags   map[int]*Flag
	robots  map[int]*RobotController

	teamCounts   [NumTeams]int
	nextPlayerID int
	realPlayers  int // humans currently in the roster
	readyCount   int

	started  bool
	ending   bool // endGame ran; transitions false->true exactly once
	torndown bool

	startedAt time.Time

	db        *DB        // nil in tests
	analytics *Analytics // nil in tests

	// onTeardown detaches the session from its registry once teardown runs.
	onTeardown func()
}

// NewGameSession creates a session with one flag per team.
func NewGameSession(tun *Tuning, oracle CollisionOracle, sched Scheduler, db *DB, analytics *Analytics) *GameSession {
	planner := NewSpawnPlanner(tun)
	g := &GameSession{
		ID:        GenerateUUID(),
		tun:       tun,
		oracle:    oracle,
		planner:   planner,
		sched:     sched,
		channel:   newChannel(),
		players:   make(map[int]*PlayerSession),
		flags:     make(map[int]*Flag),
		robots:    make(map[int]*RobotController),
		startedAt: time.Now(),
		db:        db,
		analytics: analytics,
	}
	for t := Team(0); t < NumTeams; t++ {
		id := int(t) + 1
		g.flags[id] = NewFlag(id, t, planner)
	}
	return g
}

// ErrTeamFull is the rejected-join signal for a team at capacity.
type teamFullError struct{ team Team }

func (e teamFullError) Error() string { return "team " + e.team.String() + " is full" }

// AddPlayer assigns the next ID, places the snowman at its spawn slot and
// attaches the session. Humans additionally join the broadcast channel.
func (g *GameSession) AddPlayer(p *PlayerSession, team Team) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.teamCounts[team] >= g.tun.TeamCap(team) {
		return teamFullError{team}
	}
	g.nextPlayerID++
	p.ID = g.nextPlayerID
	p.Team = team
	p.HP = g.tun.MaxHP
	p.game = g

	g.teamCounts[team]++
	pos := g.planner.SpawnPosition(team, g.teamCounts[team]-1, g.teamCounts[team])
	p.start = pos
	p.dest = pos
	p.timestamp = nowMillis()
	p.state = StateStopped

	g.players[p.ID] = p
	if p.Human() {
		g.channel.Join(p.ID, p.client)
		g.realPlayers++
	}
	return nil
}

// BalancedTeam returns the team a new participant should join: the one with
// the fewest members, capacity permitting.
func (g *GameSession) BalancedTeam() Team {
	g.mu.Lock()
	defer g.mu.Unlock()
	best := TeamRed
	for t := Team(1); t < NumTeams; t++ {
		if g.teamCounts[t] < g.teamCounts[best] {
			best = t
		}
	}
	if g.teamCounts[best] >= g.tun.TeamCap(best) {
		// All teams full; caller's AddPlayer will reject
		return best
	}
	return best
}

// RemovePlayer drops the participant's held flag at its last known position
// and removes it from the roster. When the last human leaves, the match ends
// in a draw.
func (g *GameSession) RemovePlayer(playerID int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.players[playerID]
	if p == nil {
		return
	}
	p.dropFlag(p.ExpectedPosition(nowMillis()))
	delete(g.players, playerID)
	delete(g.robots, playerID)
	g.teamCounts[p.Team]--
	if p.Human() {
		g.channel.Leave(playerID)
		g.realPlayers--
		if p.ready {
			g.readyCount--
		}
	}
	p.state = StateNone
	p.game = nil

	if g.realPlayers == 0 {
		g.endGameLocked(NoTeam, true)
		return
	}
	g.channel.SendAll(Envelope{T: MsgRemoved, Data: RemovedMsg{ID: playerID}})
	g.checkStartLocked()
}

// HandleReady counts a human's ready signal. When every real player has
// signaled, the start barrier releases exactly once per session.
func (g *GameSession) HandleReady(playerID int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.players[playerID]
	if p == nil || !p.Human() || p.ready || g.started {
		return
	}
	p.ready = true
	g.readyCount++
	g.checkStartLocked()
}

// checkStartLocked releases the start barrier once every human currently in
// the roster has signaled ready. Re-evaluated on both ready and removal, so
// a leaver cannot strand the humans who already signaled.
func (g *GameSession) checkStartLocked() {
	if g.started || g.realPlayers == 0 || g.readyCount < g.realPlayers {
		return
	}
	g.started = true
	g.startedAt = time.Now()
	g.channel.SendAll(Envelope{T: MsgStart})
	if g.analytics != nil {
		g.analytics.Track(EvtMatchStart, 0, g.ID, "")
	}
}

// Started reports whether the start barrier has released.
func (g *GameSession) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// SendMapInfo runs the join handshake: each human first gets its private
// "you are player N on map M" message, then a private roster/flag snapshot.
// Both go on the per-client lane instead of the shared channel so every
// participant observes the roster before any broadcast referencing it.
func (g *GameSession) SendMapInfo() {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := RosterSnapshot{
		Players: make([]PlayerInfo, 0, len(g.players)),
		Flags:   make([]FlagInfo, 0, len(g.flags)),
	}
	for _, p := range g.players {
		snapshot.Players = append(snapshot.Players, PlayerInfo{
			ID: p.ID, Name: p.Name, Team: int(p.Team),
			X: p.start.X, Y: p.start.Y, HP: p.HP, Robot: !p.Human(),
		})
	}
	for _, f := range g.flags {
		snapshot.Flags = append(snapshot.Flags, FlagInfo{
			ID: f.ID, Team: int(f.Team),
			X: f.Pos.X, Y: f.Pos.Y, GoalX: f.Goal.X, GoalY: f.Goal.Y,
		})
	}
	frame, err := msgpack.Marshal(snapshot)
	if err != nil {
		log.Printf("session %s: snapshot marshal: %v", g.ID, err)
		return
	}

	for _, p := range g.players {
		if !p.Human() {
			continue
		}
		g.channel.Send(p.ID, Envelope{T: MsgNewGame, Data: NewGameMsg{
			PlayerID: p.ID, MapName: g.tun.MapName,
		}})
		g.channel.SendBinaryTo(p.ID, frame)
	}
}

// Action entry points. Clients and robots go through the same contract.

func (g *GameSession) Move(playerID int, now int64, start, end Coord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.players[playerID]; p != nil {
		p.move(now, start, end)
	}
}

func (g *GameSession) Attack(playerID int, now int64, targetID int, pos Coord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.players[playerID]; p != nil {
		p.attack(now, targetID, pos)
	}
}

func (g *GameSession) GrabFlag(playerID int, now int64, flagID int, pos Coord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.players[playerID]; p != nil {
		p.grabFlag(now, flagID, pos)
	}
}

func (g *GameSession) Score(playerID int, now int64, pos Coord) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.players[playerID]; p != nil {
		return p.score(now, pos)
	}
	return false
}

// Player returns the session for an ID, nil when gone.
func (g *GameSession) Player(playerID int) *PlayerSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.players[playerID]
}

// scheduleRespawn enqueues the respawn task for a dead snowman. The task
// carries only the ID: if the session was torn down or the player removed
// before it fires, the lookup misses and the task no-ops.
func (g *GameSession) scheduleRespawn(playerID int) {
	g.sched.Schedule(g.tun.RespawnDelay(), func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.torndown {
			return
		}
		if p := g.players[playerID]; p != nil {
			p.respawn()
		}
	})
}

// EndGame ends the match with a winner, or a draw when draw is set.
// Idempotent: the second call is a no-op.
func (g *GameSession) EndGame(winner Team, draw bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endGameLocked(winner, draw)
}

// endGameLocked broadcasts the outcome immediately and schedules teardown
// after a fixed delay so the terminal message is delivered before the
// session's objects vanish. Returns whether this call did the ending.
func (g *GameSession) endGameLocked(winner Team, draw bool) bool {
	if g.ending {
		return false
	}
	g.ending = true

	g.channel.SendAll(Envelope{T: MsgEndGame, Data: EndGameMsg{Winner: int(winner), Draw: draw}})
	g.recordMatch(winner, draw)

	g.sched.Schedule(g.tun.TeardownDelay(), func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.teardownLocked()
	})
	return true
}

// Ending reports whether endGame has run.
func (g *GameSession) Ending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ending
}

// sessionDetacher lets teardown sever a live connection's session binding
// so the client can queue for a new match without an explicit leave.
// Implemented by *Client; test broadcasters need not bother.
type sessionDetacher interface {
	setSession(g *GameSession, playerID int)
}

// teardownLocked detaches every participant from the channel and destroys
// the channel, all robots and all flags. Humans are torn down by their own
// disconnect path, not here.
func (g *GameSession) teardownLocked() {
	if g.torndown {
		return
	}
	g.torndown = true

	for id, p := range g.players {
		if p.Human() {
			g.channel.Leave(id)
			if d, ok := p.client.(sessionDetacher); ok {
				d.setSession(nil, 0)
			}
		} else {
			delete(g.players, id)
			g.teamCounts[p.Team]--
		}
		p.state = StateNone
	}
	g.channel.destroy()
	g.robots = map[int]*RobotController{}
	g.flags = map[int]*Flag{}

	if g.onTeardown != nil {
		g.onTeardown()
	}
}

// RegisterRobot records a controller so teardown can account for it.
func (g *GameSession) RegisterRobot(r *RobotController) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.robots[r.playerID] = r
}

// matchResult is a snapshot of one authenticated player's counters, taken
// under the session lock so the database writes can happen off it.
type matchResult struct {
	authID                  int64
	team                    Team
	kills, deaths, captures int
}

// recordMatch persists the outcome and per-player stats. The snapshot is
// taken under the lock; the sqlite writes run on their own goroutine so no
// session action ever waits on the database. Best-effort: a database failure
// never disturbs the session lifecycle.
func (g *GameSession) recordMatch(winner Team, draw bool) {
	duration := time.Since(g.startedAt).Seconds()
	if g.analytics != nil {
		g.analytics.Track(EvtMatchEnd, 0, g.ID, "")
	}
	if g.db == nil {
		return
	}
	results := make([]matchResult, 0, len(g.players))
	for _, p := range g.players {
		if p.authID == 0 {
			continue
		}
		results = append(results, matchResult{p.authID, p.Team, p.kills, p.deaths, p.captures})
	}

	db, id := g.db, g.ID
	go func() {
		matchID, err := db.RecordMatch(int(winner), draw, duration)
		if err != nil {
			log.Printf("session %s: record match: %v", id, err)
			return
		}
		for _, r := range results {
			won := !draw && r.team == winner
			if err := db.RecordMatchPlayer(matchID, r.authID, int(r.team), r.kills, r.deaths, r.captures); err != nil {
				log.Printf("session %s: record match player: %v", id, err)
				continue
			}
			if err := db.UpdateStatsAfterMatch(r.authID, r.kills, r.deaths, r.captures, won, duration); err != nil {
				log.Printf("session %s: update stats: %v", id, err)
			}
		}
	}()
}

// TeamCount returns a team's current roster count.
func (g *GameSession) TeamCount(team Team) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.teamCounts[team]
}

// RosterSize returns the total roster size.
func (g *GameSession) RosterSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

package main

import (
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []Envelope
	binary   [][]byte
}

func (m *mockBroadcaster) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env, ok := msg.(Envelope); ok {
		m.messages = append(m.messages, env)
	}
}

func (m *mockBroadcaster) SendBinary(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binary = append(m.binary, data)
}

func (m *mockBroadcaster) count(msgType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, env := range m.messages {
		if env.T == msgType {
			n++
		}
	}
	return n
}

func (m *mockBroadcaster) last(msgType string) (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].T == msgType {
			return m.messages[i], true
		}
	}
	return Envelope{}, false
}

// stubScheduler records tasks instead of running them, so tests control
// exactly when delayed work fires.
type stubTask struct {
	delay time.Duration
	fn    func()
}

type stubScheduler struct {
	tasks []stubTask
}

func (s *stubScheduler) Schedule(delay time.Duration, task func()) {
	s.tasks = append(s.tasks, stubTask{delay, task})
}

// runPending fires every currently queued task once. Tasks scheduled while
// running are left queued for the next call.
func (s *stubScheduler) runPending() {
	pending := s.tasks
	s.tasks = nil
	for _, t := range pending {
		t.fn()
	}
}

func newTestSession() (*GameSession, *stubScheduler) {
	tun := DefaultTuning()
	sched := &stubScheduler{}
	oracle := NewFieldMap(tun.MapWidth, tun.MapHeight, nil)
	return NewGameSession(&tun, oracle, sched, nil, nil), sched
}

func addHuman(t *testing.T, g *GameSession, name string, team Team) (*PlayerSession, *mockBroadcaster) {
	t.Helper()
	mock := &mockBroadcaster{}
	p := NewPlayerSession(name, mock)
	if err := g.AddPlayer(p, team); err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return p, mock
}

func addRobot(t *testing.T, g *GameSession, name string, team Team) *PlayerSession {
	t.Helper()
	p := NewPlayerSession(name, nil)
	if err := g.AddPlayer(p, team); err != nil {
		t.Fatalf("add robot %s: %v", name, err)
	}
	return p
}

// placeAt pins a player at a known position so claim checks are predictable.
func placeAt(p *PlayerSession, pos Coord) {
	p.start = pos
	p.dest = pos
	p.timestamp = nowMillis()
	p.state = StateStopped
}

func TestAddPlayerAssignsSlot(t *testing.T) {
	g, _ := newTestSession()
	p, _ := addHuman(t, g, "Alice", TeamRed)

	if p.ID != 1 {
		t.Errorf("expected ID 1, got %d", p.ID)
	}
	if p.Team != TeamRed {
		t.Errorf("expected red team, got %s", p.Team)
	}
	if p.HP != g.tun.MaxHP {
		t.Errorf("expected full HP, got %d", p.HP)
	}
	if p.State() != StateStopped {
		t.Errorf("expected stopped, got %s", p.State())
	}
	if g.TeamCount(TeamRed) != 1 {
		t.Errorf("expected red count 1, got %d", g.TeamCount(TeamRed))
	}
}

func TestAddPlayerRejectsFullTeam(t *testing.T) {
	g, _ := newTestSession()
	addHuman(t, g, "A", TeamRed)
	addHuman(t, g, "B", TeamRed)

	p := NewPlayerSession("C", &mockBroadcaster{})
	if err := g.AddPlayer(p, TeamRed); err == nil {
		t.Error("third red player should be rejected at cap 2")
	}
	if g.TeamCount(TeamRed) != 2 {
		t.Errorf("expected red count 2, got %d", g.TeamCount(TeamRed))
	}
}

func TestBalancedTeamAlternates(t *testing.T) {
	g, _ := newTestSession()
	teams := make([]Team, 0, 4)
	for i := 0; i < 4; i++ {
		team := g.BalancedTeam()
		teams = append(teams, team)
		addHuman(t, g, "P", team)
	}
	if g.TeamCount(TeamRed) != 2 || g.TeamCount(TeamBlue) != 2 {
		t.Errorf("expected 2v2, got %d/%d", g.TeamCount(TeamRed), g.TeamCount(TeamBlue))
	}
	if teams[0] == teams[1] {
		t.Error("second player should join the other team")
	}
}

func TestReadyBarrier(t *testing.T) {
	g, _ := newTestSession()
	p1, m1 := addHuman(t, g, "A", TeamRed)
	p2, m2 := addHuman(t, g, "B", TeamBlue)
	addRobot(t, g, "R1", TeamRed)
	addRobot(t, g, "R2", TeamBlue)

	g.HandleReady(p1.ID)
	if g.Started() {
		t.Fatal("should not start with one of two humans ready")
	}
	g.HandleReady(p2.ID)
	if !g.Started() {
		t.Fatal("should start once every human is ready")
	}
	if m1.count(MsgStart) != 1 || m2.count(MsgStart) != 1 {
		t.Error("every human should see exactly one start broadcast")
	}

	// A repeat ready after the barrier releases must not re-broadcast
	g.HandleReady(p1.ID)
	if m1.count(MsgStart) != 1 {
		t.Error("duplicate ready should not re-broadcast start")
	}
}

func TestDuplicateReadyNotDoubleCounted(t *testing.T) {
	g, _ := newTestSession()
	p1, _ := addHuman(t, g, "A", TeamRed)
	addHuman(t, g, "B", TeamBlue)

	g.HandleReady(p1.ID)
	g.HandleReady(p1.ID)
	if g.Started() {
		t.Fatal("one player readying twice must not release a two-human barrier")
	}
}

func TestLeaveBeforeReadyReleasesBarrier(t *testing.T) {
	g, _ := newTestSession()
	p1, m1 := addHuman(t, g, "A", TeamRed)
	p2, _ := addHuman(t, g, "B", TeamBlue)

	g.HandleReady(p1.ID)
	g.RemovePlayer(p2.ID)

	if !g.Started() {
		t.Fatal("barrier should release when every remaining human has readied")
	}
	if m1.count(MsgStart) != 1 {
		t.Errorf("expected one start broadcast, got %d", m1.count(MsgStart))
	}
}

func TestReadyLeaverDoesNotStartOthers(t *testing.T) {
	g, _ := newTestSession()
	p1, _ := addHuman(t, g, "A", TeamRed)
	p2, m2 := addHuman(t, g, "B", TeamBlue)

	g.HandleReady(p1.ID)
	g.RemovePlayer(p1.ID)

	if g.Started() {
		t.Fatal("the leaver's ready must not start the match for an unready human")
	}
	g.HandleReady(p2.ID)
	if !g.Started() {
		t.Fatal("remaining human readying should release the barrier")
	}
	if m2.count(MsgStart) != 1 {
		t.Errorf("expected one start broadcast, got %d", m2.count(MsgStart))
	}
}

func TestReadyIgnoresRobotsAndStrangers(t *testing.T) {
	g, _ := newTestSession()
	p1, _ := addHuman(t, g, "A", TeamRed)
	r := addRobot(t, g, "R", TeamBlue)

	g.HandleReady(r.ID)
	g.HandleReady(999)
	if g.Started() {
		t.Fatal("robot or unknown ready must not release the barrier")
	}
	g.HandleReady(p1.ID)
	if !g.Started() {
		t.Fatal("single human ready should release the barrier")
	}
}

func TestSendMapInfo(t *testing.T) {
	g, _ := newTestSession()
	p1, m1 := addHuman(t, g, "A", TeamRed)
	addHuman(t, g, "B", TeamBlue)
	addRobot(t, g, "R1", TeamRed)
	addRobot(t, g, "R2", TeamBlue)

	g.SendMapInfo()

	env, ok := m1.last(MsgNewGame)
	if !ok {
		t.Fatal("human should receive a private newgame message")
	}
	ng := env.Data.(NewGameMsg)
	if ng.PlayerID != p1.ID {
		t.Errorf("expected player ID %d, got %d", p1.ID, ng.PlayerID)
	}
	if ng.MapName != g.tun.MapName {
		t.Errorf("expected map %q, got %q", g.tun.MapName, ng.MapName)
	}

	if len(m1.binary) != 1 {
		t.Fatalf("expected 1 binary snapshot, got %d", len(m1.binary))
	}
	var snap RosterSnapshot
	if err := msgpack.Unmarshal(m1.binary[0], &snap); err != nil {
		t.Fatalf("snapshot unmarshal: %v", err)
	}
	if len(snap.Players) != 4 {
		t.Errorf("expected 4 roster entries, got %d", len(snap.Players))
	}
	if len(snap.Flags) != 2 {
		t.Errorf("expected 2 flags, got %d", len(snap.Flags))
	}
	robots := 0
	for _, pi := range snap.Players {
		if pi.Robot {
			robots++
		}
	}
	if robots != 2 {
		t.Errorf("expected 2 robot entries, got %d", robots)
	}
}

func TestRemovePlayerBroadcasts(t *testing.T) {
	g, _ := newTestSession()
	p1, _ := addHuman(t, g, "A", TeamRed)
	_, m2 := addHuman(t, g, "B", TeamBlue)

	g.RemovePlayer(p1.ID)

	if g.TeamCount(TeamRed) != 0 {
		t.Errorf("expected red count 0, got %d", g.TeamCount(TeamRed))
	}
	env, ok := m2.last(MsgRemoved)
	if !ok {
		t.Fatal("remaining player should see the removal")
	}
	if env.Data.(RemovedMsg).ID != p1.ID {
		t.Error("removal should name the departed player")
	}
	if g.Ending() {
		t.Error("session should survive while a human remains")
	}
}

func TestLastHumanLeavingEndsInDraw(t *testing.T) {
	g, sched := newTestSession()
	p1, _ := addHuman(t, g, "A", TeamRed)
	addRobot(t, g, "R1", TeamBlue)
	addRobot(t, g, "R2", TeamRed)

	torndown := false
	g.onTeardown = func() { torndown = true }

	g.RemovePlayer(p1.ID)

	if !g.Ending() {
		t.Fatal("last human leaving should end the session")
	}
	sched.runPending() // teardown
	if !torndown {
		t.Error("teardown hook should run")
	}
	if g.RosterSize() != 0 {
		t.Errorf("robots should be gone after teardown, roster %d", g.RosterSize())
	}
}

func TestEndGameIdempotent(t *testing.T) {
	g, sched := newTestSession()
	_, m1 := addHuman(t, g, "A", TeamRed)

	g.EndGame(TeamRed, false)
	g.EndGame(TeamBlue, false)

	if m1.count(MsgEndGame) != 1 {
		t.Errorf("expected exactly one endgame broadcast, got %d", m1.count(MsgEndGame))
	}
	env, _ := m1.last(MsgEndGame)
	out := env.Data.(EndGameMsg)
	if out.Winner != int(TeamRed) || out.Draw {
		t.Errorf("first outcome should win for red, got %+v", out)
	}
	if len(sched.tasks) != 1 {
		t.Errorf("expected one teardown task, got %d", len(sched.tasks))
	}
}

func TestTeardownClearsSession(t *testing.T) {
	g, sched := newTestSession()
	p1, _ := addHuman(t, g, "A", TeamRed)
	r := addRobot(t, g, "R1", TeamBlue)
	g.RegisterRobot(NewRobotController(g, r.ID))

	g.EndGame(TeamRed, false)
	sched.runPending()

	if g.Player(r.ID) != nil {
		t.Error("robot should be removed at teardown")
	}
	if p1.State() != StateNone {
		t.Errorf("human should be reset to none, got %s", p1.State())
	}
	if len(g.flags) != 0 || len(g.robots) != 0 {
		t.Error("flags and robots should be cleared at teardown")
	}
}

func TestNewGameSessionWiresPersistence(t *testing.T) {
	db := openTestDB(t)
	analytics := NewAnalytics(db)
	defer analytics.Close()

	tun := DefaultTuning()
	oracle := NewFieldMap(tun.MapWidth, tun.MapHeight, nil)
	g := NewGameSession(&tun, oracle, &stubScheduler{}, db, analytics)

	if g.db != db {
		t.Error("session should carry the database it was built with")
	}
	if g.analytics != analytics {
		t.Error("session should carry the analytics writer it was built with")
	}
}

func TestEndGameRecordsMatch(t *testing.T) {
	db := openTestDB(t)
	winID, err := db.CreatePlayer("winner", "")
	if err != nil {
		t.Fatalf("create winner: %v", err)
	}
	loseID, err := db.CreatePlayer("loser", "")
	if err != nil {
		t.Fatalf("create loser: %v", err)
	}

	tun := DefaultTuning()
	oracle := NewFieldMap(tun.MapWidth, tun.MapHeight, nil)
	g := NewGameSession(&tun, oracle, &stubScheduler{}, db, nil)

	w := NewPlayerSession("W", &mockBroadcaster{})
	w.authID = winID
	if err := g.AddPlayer(w, TeamRed); err != nil {
		t.Fatal(err)
	}
	l := NewPlayerSession("L", &mockBroadcaster{})
	l.authID = loseID
	if err := g.AddPlayer(l, TeamBlue); err != nil {
		t.Fatal(err)
	}
	w.kills = 2
	w.captures = 1
	l.deaths = 2

	g.EndGame(TeamRed, false)

	// The writes land on their own goroutine; wait for both rows
	deadline := time.Now().Add(2 * time.Second)
	var ws, ls *StatsRow
	for {
		ws, _ = db.GetStats(winID)
		ls, _ = db.GetStats(loseID)
		if ws != nil && ws.Wins == 1 && ls != nil && ls.Losses == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("match never recorded: winner %+v loser %+v", ws, ls)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ws.Kills != 2 || ws.Captures != 1 || ws.Losses != 0 {
		t.Errorf("winner stats wrong: %+v", ws)
	}
	if ls.Deaths != 2 || ls.Wins != 0 {
		t.Errorf("loser stats wrong: %+v", ls)
	}
}

func TestRespawnTaskNoopsAfterTeardown(t *testing.T) {
	g, sched := newTestSession()
	p, _ := addHuman(t, g, "A", TeamRed)
	placeAt(p, Coord{X: 10, Y: 10})
	p.state = StateDead
	p.HP = 0
	g.scheduleRespawn(p.ID)

	g.EndGame(TeamBlue, false)
	// Fire teardown first, then the stale respawn
	sched.tasks[0], sched.tasks[1] = sched.tasks[1], sched.tasks[0]
	sched.runPending()

	if p.HP != 0 {
		t.Error("stale respawn task should not revive a torn-down player")
	}
}

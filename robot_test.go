package main

import "testing"

// robotFixture builds a session with one robot on red and one human on blue,
// returning the robot's controller. The start barrier is released.
func robotFixture(t *testing.T) (*GameSession, *stubScheduler, *RobotController, *PlayerSession, *mockBroadcaster) {
	t.Helper()
	g, sched := newTestSession()
	robot := addRobot(t, g, "Frosty", TeamRed)
	human, mock := addHuman(t, g, "B", TeamBlue)
	r := NewRobotController(g, robot.ID)
	g.RegisterRobot(r)

	g.HandleReady(human.ID)
	if !g.Started() {
		t.Fatal("fixture: barrier should release")
	}
	sched.tasks = nil // discard the start-era noise
	return g, sched, r, robot, mock
}

func TestRobotName(t *testing.T) {
	if RobotName(0) == "" {
		t.Fatal("robot names must not be empty")
	}
	if RobotName(0) != RobotName(len(robotNames)) {
		t.Error("names should wrap around the list")
	}
}

func TestRobotBacksOffBeforeStart(t *testing.T) {
	g, sched := newTestSession()
	robot := addRobot(t, g, "Frosty", TeamRed)
	addHuman(t, g, "B", TeamBlue)
	r := NewRobotController(g, robot.ID)

	r.tick()

	if len(sched.tasks) != 1 {
		t.Fatalf("expected one rescheduled tick, got %d", len(sched.tasks))
	}
	if sched.tasks[0].delay != g.tun.RobotBackoff() {
		t.Errorf("pre-start tick should back off, delay %v", sched.tasks[0].delay)
	}
}

func TestRobotBacksOffWhileDead(t *testing.T) {
	g, sched, r, robot, _ := robotFixture(t)
	robot.state = StateDead

	r.tick()

	if len(sched.tasks) != 1 || sched.tasks[0].delay != g.tun.RobotBackoff() {
		t.Error("dead robot should back off until respawn")
	}
}

func TestRobotStopsAfterTeardown(t *testing.T) {
	g, sched, r, _, _ := robotFixture(t)
	g.torndown = true

	r.tick()

	if len(sched.tasks) != 0 {
		t.Errorf("torn-down session must not reschedule, got %d tasks", len(sched.tasks))
	}
}

func TestRobotStopsWhenEnding(t *testing.T) {
	g, sched, r, _, _ := robotFixture(t)
	g.ending = true

	r.tick()

	if len(sched.tasks) != 0 {
		t.Errorf("ending session must not reschedule, got %d tasks", len(sched.tasks))
	}
}

func TestRobotStopsWhenRemoved(t *testing.T) {
	g, sched, r, robot, _ := robotFixture(t)
	g.RemovePlayer(robot.ID)
	sched.tasks = nil

	r.tick()

	if len(sched.tasks) != 0 {
		t.Error("removed robot must not reschedule")
	}
}

func TestRobotFightsAdjacentEnemy(t *testing.T) {
	g, sched, r, robot, mock := robotFixture(t)

	// Put the enemy flag in foreign hands so the robot has nothing to chase
	g.flags[2].HeldBy = 999

	placeAt(robot, Coord{X: 10, Y: 10})
	human := g.players[2]
	placeAt(human, Coord{X: 12, Y: 10})

	r.tick()

	if human.HP != g.tun.MaxHP-g.tun.AttackDamage {
		t.Errorf("adjacent enemy should be hit, HP %d", human.HP)
	}
	if mock.count(MsgAttacked) != 1 {
		t.Errorf("expected one attack broadcast, got %d", mock.count(MsgAttacked))
	}
	if len(sched.tasks) != 1 {
		t.Errorf("live robot should reschedule, got %d tasks", len(sched.tasks))
	}
}

func TestRobotClosesOnDistantEnemy(t *testing.T) {
	g, _, r, robot, mock := robotFixture(t)
	g.flags[2].HeldBy = 999

	placeAt(robot, Coord{X: 10, Y: 10})
	human := g.players[2]
	placeAt(human, Coord{X: 80, Y: 10})

	r.tick()

	if robot.State() != StateMoving {
		t.Fatalf("out-of-reach robot should close in, got %s", robot.State())
	}
	if human.HP != g.tun.MaxHP {
		t.Error("no damage from beyond reach")
	}
	if mock.count(MsgMoved) != 1 {
		t.Errorf("expected one move broadcast, got %d", mock.count(MsgMoved))
	}
}

func TestRobotScoresCarriedFlag(t *testing.T) {
	g, _, r, robot, mock := robotFixture(t)

	f := g.flags[2] // blue flag, scores at red's home
	if !f.Take(robot) {
		t.Fatal("setup: robot should take the blue flag")
	}
	robot.flagID = f.ID
	placeAt(robot, f.Goal)

	r.tick()

	if !g.Ending() {
		t.Fatal("delivery at the goal should end the match")
	}
	env, ok := mock.last(MsgEndGame)
	if !ok {
		t.Fatal("human should see the end broadcast")
	}
	out := env.Data.(EndGameMsg)
	if out.Winner != int(TeamRed) || out.Draw {
		t.Errorf("robot's team should win, got %+v", out)
	}
}

func TestRobotCarriesFlagTowardGoal(t *testing.T) {
	g, _, r, robot, _ := robotFixture(t)

	f := g.flags[2]
	f.Take(robot)
	robot.flagID = f.ID
	placeAt(robot, Coord{X: 60, Y: 48})

	r.tick()

	if robot.State() != StateMoving {
		t.Fatalf("carrier should head for the goal, got %s", robot.State())
	}
	// Whatever the juke, the committed destination stays on the field
	if robot.dest.X < 0 || robot.dest.X > g.tun.MapWidth ||
		robot.dest.Y < 0 || robot.dest.Y > g.tun.MapHeight {
		t.Errorf("carry destination off the field: %+v", robot.dest)
	}
	if g.Ending() {
		t.Error("mid-field carry must not score")
	}
}

package main

import (
	"log"
	"sync"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub manages all connected clients, the matchmaking queue and the session
// registry. When enough humans are waiting it forms a GameSession, balances
// teams, fills the remaining slots with robots and runs the map handshake.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	sessions *SessionManager

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	// Matchmaking queue of humans waiting for a session
	queueMu sync.Mutex
	queue   []*Client

	tun       *Tuning
	oracle    CollisionOracle
	sched     Scheduler
	db        *DB
	auth      *Auth
	analytics *Analytics
}

// NewHub creates a Hub. db may be nil to run without accounts/persistence.
func NewHub(tun *Tuning, oracle CollisionOracle, sched Scheduler, db *DB, analytics *Analytics) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		sessions:   NewSessionManager(),
		ipConns:    make(map[string]int),
		tun:        tun,
		oracle:     oracle,
		sched:      sched,
		db:         db,
		analytics:  analytics,
	}
	if db != nil {
		h.auth = NewAuth(db)
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

			h.dequeue(client)
			if sess, pid := client.getSession(); sess != nil {
				sess.RemovePlayer(pid)
				client.setSession(nil, 0)
			}
			if h.analytics != nil {
				h.analytics.Track(EvtSessionEnd, client.authPlayerID, "", "")
			}
		}
	}
}

// Enqueue puts a client into the matchmaking queue, forming a session once
// enough humans are waiting.
func (h *Hub) Enqueue(c *Client) {
	h.queueMu.Lock()
	for _, q := range h.queue {
		if q == c {
			h.queueMu.Unlock()
			return
		}
	}
	h.queue = append(h.queue, c)
	if len(h.queue) < h.tun.HumansPerSession {
		h.queueMu.Unlock()
		c.SendJSON(Envelope{T: MsgQueued})
		return
	}
	batch := h.queue[:h.tun.HumansPerSession]
	h.queue = append([]*Client(nil), h.queue[h.tun.HumansPerSession:]...)
	h.queueMu.Unlock()

	h.formSession(batch)
}

// dequeue removes a waiting client, e.g. on disconnect.
func (h *Hub) dequeue(c *Client) {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	for i, q := range h.queue {
		if q == c {
			h.queue = append(h.queue[:i], h.queue[i+1:]...)
			return
		}
	}
}

// formSession groups the batch into a new GameSession, tops the roster up
// with robots and runs the sendMapInfo handshake. Clients then signal ready
// to release the start barrier.
func (h *Hub) formSession(batch []*Client) {
	g := NewGameSession(h.tun, h.oracle, h.sched, h.db, h.analytics)
	if !h.sessions.Add(g) {
		log.Printf("session limit reached, rejecting %d queued players", len(batch))
		for _, c := range batch {
			c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "server full, try again later"}})
		}
		return
	}

	for _, c := range batch {
		p := NewPlayerSession(c.playerName, c)
		p.authID = c.authPlayerID
		if err := g.AddPlayer(p, g.BalancedTeam()); err != nil {
			c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
			continue
		}
		c.setSession(g, p.ID)
	}

	for i := 0; g.RosterSize() < h.tun.PlayersPerSession; i++ {
		p := NewPlayerSession(RobotName(i), nil)
		if err := g.AddPlayer(p, g.BalancedTeam()); err != nil {
			break
		}
		r := NewRobotController(g, p.ID)
		g.RegisterRobot(r)
		r.Start()
	}

	g.SendMapInfo()
	if h.analytics != nil {
		h.analytics.Track(EvtSessionStart, 0, g.ID, "")
	}
	log.Printf("session %s formed: %d humans, %d total", g.ID, len(batch), g.RosterSize())
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// QueueLen returns the number of humans waiting for a match.
func (h *Hub) QueueLen() int {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	return len(h.queue)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

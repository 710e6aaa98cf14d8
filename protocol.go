package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin   = "join"   // enter the matchmaking queue
	MsgReady  = "ready"  // client finished loading, waiting at start barrier
	MsgMove   = "move"   // movement report
	MsgAttack = "attack" // snowball throw report
	MsgGrab   = "grab"   // flag grab report
	MsgScore  = "score"  // flag delivery report
	MsgLeave  = "leave"

	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth" // token re-auth
	MsgProfile  = "profile"
)

// Server -> Client message types
const (
	MsgQueued      = "queued"   // waiting for more players
	MsgNewGame     = "newgame"  // you are player N on map M
	MsgStart       = "start"    // start barrier released
	MsgMoved       = "moved"    // committed move
	MsgStop        = "stop"     // stop correction: server snapped a player
	MsgAttacked    = "attacked" // attack outcome, damage may be 0
	MsgAttach      = "attach"   // flag picked up
	MsgFlagDrop    = "flagdrop" // flag hit the ground
	MsgRespawn     = "respawn"
	MsgRemoved     = "removed" // player left the session
	MsgEndGame     = "endgame"
	MsgError       = "error"
	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile_data"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg enters the matchmaking queue
type JoinMsg struct {
	Name string `json:"name"`
}

// MoveMsg reports intended movement from a claimed start position
type MoveMsg struct {
	SX float64 `json:"sx"`
	SY float64 `json:"sy"`
	EX float64 `json:"ex"`
	EY float64 `json:"ey"`
}

// AttackMsg reports a snowball throw at a target
type AttackMsg struct {
	Target int     `json:"tid"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// GrabMsg reports a flag grab attempt
type GrabMsg struct {
	FlagID int     `json:"fid"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// ScoreMsg reports a flag delivery attempt
type ScoreMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewGameMsg assigns the client its player ID and map
type NewGameMsg struct {
	PlayerID int    `json:"pid"`
	MapName  string `json:"map"`
}

// MovedMsg is broadcast when a move commits
type MovedMsg struct {
	ID int     `json:"id"`
	SX float64 `json:"sx"`
	SY float64 `json:"sy"`
	EX float64 `json:"ex"`
	EY float64 `json:"ey"`
}

// StopMsg is broadcast when the server stops a player at an authoritative
// position, either as an anti-cheat correction or as part of combat
type StopMsg struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// AttackedMsg is broadcast for every attack, including misses (Damage 0),
// so clients always see a deterministic animation trigger
type AttackedMsg struct {
	Attacker int `json:"aid"`
	Target   int `json:"tid"`
	Damage   int `json:"dmg"`
	HP       int `json:"hp"` // target health after the hit
}

// AttachMsg is broadcast when a flag is picked up
type AttachMsg struct {
	FlagID   int `json:"fid"`
	PlayerID int `json:"pid"`
}

// FlagDropMsg is broadcast when a carrier dies or leaves
type FlagDropMsg struct {
	FlagID int     `json:"fid"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// RespawnMsg is broadcast when a dead player returns
type RespawnMsg struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	HP int     `json:"hp"`
}

// RemovedMsg is broadcast when a player leaves mid-match
type RemovedMsg struct {
	ID int `json:"id"`
}

// EndGameMsg is the terminal broadcast of a match
type EndGameMsg struct {
	Winner int  `json:"winner"`
	Draw   bool `json:"draw"`
}

// ErrorMsg sends an error to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// PlayerInfo is one roster entry in the private spawn snapshot
type PlayerInfo struct {
	ID    int     `msgpack:"id"`
	Name  string  `msgpack:"n"`
	Team  int     `msgpack:"t"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	HP    int     `msgpack:"hp"`
	Robot bool    `msgpack:"r"`
}

// FlagInfo is one flag entry in the private spawn snapshot
type FlagInfo struct {
	ID    int     `msgpack:"id"`
	Team  int     `msgpack:"t"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	GoalX float64 `msgpack:"gx"`
	GoalY float64 `msgpack:"gy"`
}

// RosterSnapshot is the full roster/flag listing sent privately to each
// participant after the newgame message. It goes over the per-client lane,
// not the shared channel, so every client is guaranteed to see the snapshot
// before any broadcast traffic referencing the same objects. Encoded with
// msgpack as a binary frame, like all bulk state.
type RosterSnapshot struct {
	Players []PlayerInfo `msgpack:"p"`
	Flags   []FlagInfo   `msgpack:"f"`
}

// Auth messages

type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthMsg struct {
	Token string `json:"token"`
}

type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"player_id"`
}

type ProfileDataMsg struct {
	Username string  `json:"username"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Captures int     `json:"captures"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Playtime float64 `json:"playtime"`
}

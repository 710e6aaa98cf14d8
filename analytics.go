package main

import (
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtMatchStart   = "match_start"
	EvtMatchEnd     = "match_end"
	EvtPlayerKill   = "player_kill"
	EvtFlagGrab     = "flag_grab"
	EvtFlagCapture  = "flag_capture"
	EvtSessionStart = "session_start"
	EvtSessionEnd   = "session_end"
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	PlayerID  int64
	SessionID string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

const (
	analyticsBufSize  = 1024
	analyticsBatchMax = 64
	analyticsFlushInt = 5 * time.Second
)

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsBufSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, playerID int64, sessionID string, data string) {
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		PlayerID:  playerID,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
	}:
	default:
		// Buffer full, drop rather than block a game action
	}
}

// Close flushes pending events and stops the writer
func (a *Analytics) Close() {
	close(a.stop)
	a.wg.Wait()
}

// writer batches events and flushes them periodically or when the batch
// fills, so gameplay never waits on the database.
func (a *Analytics) writer() {
	defer a.wg.Done()

	ticker := time.NewTicker(analyticsFlushInt)
	defer ticker.Stop()

	batch := make([]AnalyticsEvent, 0, analyticsBatchMax)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.db.InsertEvents(batch); err != nil {
			log.Printf("analytics flush: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-a.events:
			batch = append(batch, e)
			if len(batch) >= analyticsBatchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			// Drain what's left
			for {
				select {
				case e := <-a.events:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

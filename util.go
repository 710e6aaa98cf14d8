package main

import (
	"crypto/rand"
	"encoding/hex"
	"math"
	"time"

	"github.com/google/uuid"
)

// Coord is a 2D map position. Height is presentation-only and never
// reaches the server.
type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistSq returns the squared distance to another coordinate.
func (c Coord) DistSq(o Coord) float64 {
	dx := o.X - c.X
	dy := o.Y - c.Y
	return dx*dx + dy*dy
}

// Dist returns the distance to another coordinate.
func (c Coord) Dist(o Coord) float64 {
	return math.Sqrt(c.DistSq(o))
}

// Lerp returns the point a fraction t of the way from c toward o.
func (c Coord) Lerp(o Coord, t float64) Coord {
	return Coord{
		X: c.X + (o.X-c.X)*t,
		Y: c.Y + (o.Y-c.Y)*t,
	}
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateUUID returns a random UUID v4 string, used for session IDs
func GenerateUUID() string {
	return uuid.NewString()
}

// nowMillis is the server clock used for dead reckoning. All action
// timestamps are milliseconds from this clock; client-reported times are
// never trusted.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

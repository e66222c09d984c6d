// Package history provides the bounded window of paired readings used
// for charting. It keeps no locks; a Buffer belongs to one goroutine.
package history

import (
	"math"
	"time"
)

// DefaultCapacity is the window size when none is configured.
const DefaultCapacity = 60

// Point is one completed reading pair.
type Point struct {
	Temp float64   `json:"temp"`
	Hum  float64   `json:"hum"`
	Time time.Time `json:"time"`
}

// Channel selects one series of a Buffer.
type Channel int

// Series.
const (
	Temperature Channel = iota
	Humidity
)

func (p Point) value(ch Channel) float64 {
	if ch == Humidity {
		return p.Hum
	}
	return p.Temp
}

// Stats summarises one series over the current window.
type Stats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Buffer is a fixed-capacity ring of Points. When full, Push evicts the
// oldest point.
type Buffer struct {
	points []Point
	head   int // index of the oldest point once full
	size   int
}

// NewBuffer creates a ring with the given capacity. Non-positive
// capacities fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{points: make([]Point, capacity)}
}

// Push appends a point, evicting the oldest when the ring is full.
func (b *Buffer) Push(temp, hum float64, t time.Time) {
	p := Point{Temp: temp, Hum: hum, Time: t}
	if b.size < len(b.points) {
		b.points[(b.head+b.size)%len(b.points)] = p
		b.size++
		return
	}
	b.points[b.head] = p
	b.head = (b.head + 1) % len(b.points)
}

// Len returns the number of stored points.
func (b *Buffer) Len() int { return b.size }

// Cap returns the ring capacity.
func (b *Buffer) Cap() int { return len(b.points) }

// at returns the i-th oldest point.
func (b *Buffer) at(i int) Point {
	return b.points[(b.head+i)%len(b.points)]
}

// Points returns a copy of the window, oldest first.
func (b *Buffer) Points() []Point {
	if b.size == 0 {
		return nil
	}
	out := make([]Point, b.size)
	for i := range out {
		out[i] = b.at(i)
	}
	return out
}

// Stats returns min, max and mean of one series. All fields are zero
// for an empty window.
func (b *Buffer) Stats(ch Channel) Stats {
	if b.size == 0 {
		return Stats{}
	}
	s := Stats{Min: math.MaxFloat64, Max: -math.MaxFloat64}
	sum := 0.0
	for i := 0; i < b.size; i++ {
		v := b.at(i).value(ch)
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(b.size)
	return s
}

package common

import (
	"fmt"
	"math"
)

// Coord is the type of coordinates
type Coord float32

// Vector3 is a position or direction in space
type Vector3 struct {
	X Coord
	Y Coord
	Z Coord
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// Length returns the length of the vector
func (p Vector3) Length() Coord {
	return Coord(math.Sqrt(float64(p.X*p.X + p.Y*p.Y + p.Z*p.Z)))
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Add calculates Vector3 p + Vector3 o
func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m Coord) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}

// Normalized returns the unit vector of p, zero vectors stay zero
func (p Vector3) Normalized() Vector3 {
	d := p.Length()
	if d == 0 {
		return p
	}
	return Vector3{p.X / d, p.Y / d, p.Z / d}
}

// Yaw returns the yaw of a movement vector in radians
func (p Vector3) Yaw() Coord {
	return Coord(math.Atan2(float64(p.X), float64(p.Z)))
}

// Direction is the orientation of an entity in radians
type Direction struct {
	Roll  Coord
	Pitch Coord
	Yaw   Coord
}

// AsVector3 returns the direction as (roll, pitch, yaw)
func (d Direction) AsVector3() Vector3 {
	return Vector3{d.Roll, d.Pitch, d.Yaw}
}

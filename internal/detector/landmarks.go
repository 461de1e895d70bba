// Package detector provides hand landmark detection backends and the
// per-frame instance records produced from them.
package detector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// LandmarkNames holds the identifier of each landmark, indexed like the constants above.
var LandmarkNames = [NumLandmarks]string{
	"WRIST",
	"THUMB_CMC",
	"THUMB_MCP",
	"THUMB_IP",
	"THUMB_TIP",
	"INDEX_FINGER_MCP",
	"INDEX_FINGER_PIP",
	"INDEX_FINGER_DIP",
	"INDEX_FINGER_TIP",
	"MIDDLE_FINGER_MCP",
	"MIDDLE_FINGER_PIP",
	"MIDDLE_FINGER_DIP",
	"MIDDLE_FINGER_TIP",
	"RING_FINGER_MCP",
	"RING_FINGER_PIP",
	"RING_FINGER_DIP",
	"RING_FINGER_TIP",
	"PINKY_MCP",
	"PINKY_PIP",
	"PINKY_DIP",
	"PINKY_TIP",
}

// LandmarkIndex returns the index of a landmark name, or -1.
func LandmarkIndex(name string) int {
	for i, n := range LandmarkNames {
		if n == name {
			return i
		}
	}
	return -1
}

// HandConnections lists the landmark pairs joined when drawing a hand skeleton.
var HandConnections = [][2]int{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Point3D represents a 3D point with x, y normalized to [0, 1] of the frame.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Bounds returns the normalized top-left corner of the hand's bounding box.
func (h *HandLandmarks) Bounds() (minX, minY float64) {
	minX, minY = h.Points[0].X, h.Points[0].Y
	for _, p := range h.Points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
	}
	return minX, minY
}

// Instance converts normalized landmarks into a record with pixel coordinates
// for a frame of the given size.
func (h *HandLandmarks) Instance(width, height int) Instance {
	inst := Instance{
		CategoryName: h.Handedness,
		Score:        h.Score,
	}
	for i, p := range h.Points {
		inst.Coordinates[i] = [2]float64{p.X * float64(width), p.Y * float64(height)}
	}
	return inst
}

// Instance is one detected hand in a frame: handedness label, confidence and
// landmark positions in pixels.
type Instance struct {
	CategoryName string      `json:"CategoryName"`
	Score        float64     `json:"Score"`
	Coordinates  Coordinates `json:"Coordinates"`
}

// Coordinates maps every landmark name to an [x, y] pixel position.
// It serializes as a JSON object keyed by landmark name, in landmark order.
type Coordinates [NumLandmarks][2]float64

// Get returns the position of a named landmark.
func (c *Coordinates) Get(name string) ([2]float64, bool) {
	i := LandmarkIndex(name)
	if i < 0 {
		return [2]float64{}, false
	}
	return c[i], true
}

// MarshalJSON implements json.Marshaler.
func (c Coordinates) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range LandmarkNames {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(name))
		buf.WriteByte(':')
		xy, err := json.Marshal(c[i])
		if err != nil {
			return nil, err
		}
		buf.Write(xy)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var raw map[string][2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, xy := range raw {
		i := LandmarkIndex(name)
		if i < 0 {
			return fmt.Errorf("unknown landmark %q", name)
		}
		c[i] = xy
	}
	return nil
}

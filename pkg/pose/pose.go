// Package pose holds the spatial data model shared by the server and its
// clients: vectors, quaternions, participant records and partial updates.
package pose

import "github.com/go-gl/mathgl/mgl64"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation quaternion. The zero value is not a valid rotation,
// use Identity.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func Identity() Quat { return Quat{W: 1} }

type Pose struct {
	Position    Vec3 `json:"position"`
	Orientation Quat `json:"orientation"`
}

// HandPose is a controller transform. Position is nil while the device is
// not tracked.
type HandPose struct {
	Position    *Vec3 `json:"position,omitempty"`
	Orientation Quat  `json:"orientation"`
}

// Participant is the per-connection record of one member of a space.
type Participant struct {
	ID        string   `json:"id"`
	SpaceName string   `json:"spaceName"`
	Nickname  string   `json:"nickname"`
	Body      Pose     `json:"body"`
	Head      Pose     `json:"head"`
	LeftHand  HandPose `json:"leftHand"`
	RightHand HandPose `json:"rightHand"`
}

// Clone returns a deep copy; hand positions are not shared.
func (p Participant) Clone() Participant {
	out := p
	out.LeftHand.Position = cloneVec(p.LeftHand.Position)
	out.RightHand.Position = cloneVec(p.RightHand.Position)
	return out
}

func cloneVec(v *Vec3) *Vec3 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (v Vec3) vec() mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

func fromVec(v mgl64.Vec3) Vec3 { return Vec3{X: v[0], Y: v[1], Z: v[2]} }

func (q Quat) quat() mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

func fromQuat(q mgl64.Quat) Quat {
	return Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

// Len is the quaternion norm.
func (q Quat) Len() float64 { return q.quat().Len() }

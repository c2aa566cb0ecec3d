package pose

import "github.com/go-gl/mathgl/mgl64"

// Lerp interpolates linearly; t outside [0,1] extrapolates.
func Lerp(a, b Vec3, t float64) Vec3 {
	va, vb := a.vec(), b.vec()
	return fromVec(va.Add(vb.Sub(va).Mul(t)))
}

// Slerp interpolates along the shorter arc between a and b.
func Slerp(a, b Quat, t float64) Quat {
	qa, qb := a.quat(), b.quat()
	if qa.Dot(qb) < 0 {
		qb = qb.Scale(-1)
	}
	return fromQuat(mgl64.QuatSlerp(qa, qb, t))
}

// InterpolatePose blends position and orientation of two poses.
func InterpolatePose(a, b Pose, t float64) Pose {
	return Pose{
		Position:    Lerp(a.Position, b.Position, t),
		Orientation: Slerp(a.Orientation, b.Orientation, t),
	}
}

// InterpolateHand blends two hand poses. When either side is untracked the
// newer side wins, there is nothing to blend against.
func InterpolateHand(a, b HandPose, t float64) HandPose {
	out := HandPose{Orientation: Slerp(a.Orientation, b.Orientation, t)}
	switch {
	case a.Position != nil && b.Position != nil:
		p := Lerp(*a.Position, *b.Position, t)
		out.Position = &p
	case b.Position != nil:
		out.Position = cloneVec(b.Position)
	}
	return out
}

// Interpolate blends every transform of two records of the same participant.
// Identity fields come from b.
func Interpolate(a, b Participant, t float64) Participant {
	out := b.Clone()
	out.Body = InterpolatePose(a.Body, b.Body, t)
	out.Head = InterpolatePose(a.Head, b.Head, t)
	out.LeftHand = InterpolateHand(a.LeftHand, b.LeftHand, t)
	out.RightHand = InterpolateHand(a.RightHand, b.RightHand, t)
	return out
}

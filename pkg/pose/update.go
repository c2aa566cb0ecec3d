package pose

// VecDelta carries the position components a client chose to send.
type VecDelta struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

type Delta struct {
	Position    *VecDelta `json:"position,omitempty"`
	Orientation *Quat     `json:"orientation,omitempty"`
}

// Update is a partial pose update. Nil fields are left untouched on merge,
// so a hand pose once set is never cleared implicitly.
type Update struct {
	Body      *Delta `json:"body,omitempty"`
	Head      *Delta `json:"head,omitempty"`
	LeftHand  *Delta `json:"leftHand,omitempty"`
	RightHand *Delta `json:"rightHand,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (u Update) Empty() bool {
	return u.Body == nil && u.Head == nil && u.LeftHand == nil && u.RightHand == nil
}

// Apply merges u into p field by field.
func (u Update) Apply(p *Participant) {
	applyPose(&p.Body, u.Body)
	applyPose(&p.Head, u.Head)
	applyHand(&p.LeftHand, u.LeftHand)
	applyHand(&p.RightHand, u.RightHand)
}

func applyPose(dst *Pose, d *Delta) {
	if d == nil {
		return
	}
	if d.Position != nil {
		d.Position.applyTo(&dst.Position)
	}
	if d.Orientation != nil {
		dst.Orientation = *d.Orientation
	}
}

func applyHand(dst *HandPose, d *Delta) {
	if d == nil {
		return
	}
	if d.Position != nil && !d.Position.empty() {
		if dst.Position == nil {
			dst.Position = &Vec3{}
		}
		d.Position.applyTo(dst.Position)
	}
	if d.Orientation != nil {
		dst.Orientation = *d.Orientation
	}
}

func (d VecDelta) empty() bool { return d.X == nil && d.Y == nil && d.Z == nil }

func (d VecDelta) applyTo(v *Vec3) {
	if d.X != nil {
		v.X = *d.X
	}
	if d.Y != nil {
		v.Y = *d.Y
	}
	if d.Z != nil {
		v.Z = *d.Z
	}
}

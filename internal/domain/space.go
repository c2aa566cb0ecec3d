package domain

type SpaceName string

// SpaceInfo is the read-only summary exposed over the HTTP API.
type SpaceInfo struct {
	Name         SpaceName `json:"name"`
	Participants int       `json:"participants"`
	Capacity     int       `json:"capacity"`
}

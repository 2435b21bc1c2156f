package location

import "github.com/Luckywi/EcoLyon-sub001/internal/geo"

// PassiveSource is a FixSource with no platform backing: it never produces
// fixes, so the provider concludes through its fallback policy. Used when the
// service runs without a device location feed.
type PassiveSource struct{}

func (PassiveSource) LastKnown() (geo.Coordinate, bool) { return geo.Coordinate{}, false }
func (PassiveSource) RequestAuthorization()             {}
func (PassiveSource) StartUpdates()                     {}
func (PassiveSource) StopUpdates()                      {}

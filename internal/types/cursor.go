package types

// TrackingCursor locates the tracker's position within a loaded
// trajectory: which sample, and how far into the sub-sample ticks
// between that sample and the next (spec.md section 3).
type TrackingCursor struct {
	SampleIndex    int
	SubSampleIndex int
	Complete       bool
}

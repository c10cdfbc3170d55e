// Package trajectory implements the trajectory store and interpolator
// (C4): validates and loads a time-sampled trajectory, and produces the
// horizon-length reference slice the reference pipeline needs at each
// control tick, honouring sample timestamps, looping and sub-sample
// interpolation.
package trajectory

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("trajectory")

// LoopEndpointToleranceMeters is the proximity threshold a looping
// trajectory's first and last sample must satisfy. The source this was
// distilled from hardcodes this as a literal distance of pi metres; the
// intent behind that specific number is undocumented, so it is kept for
// numeric compatibility but exposed here instead of buried in the
// comparison (spec.md section 9, Open Questions).
const LoopEndpointToleranceMeters = math.Pi

// Config carries the control timing the store needs to validate and
// interpolate a trajectory.
type Config struct {
	ControlPeriod time.Duration // Delta1
	SampleSpacing time.Duration // Delta2
	Horizon       int
}

// Store holds at most one loaded trajectory, replaced atomically on each
// load; once loaded, its samples are changed in place only by
// ApplyTransform.
type Store struct {
	mu sync.RWMutex

	cfg Config

	loaded     bool
	points     []types.TrajectorySample // N original samples + H padding
	n          int                       // original sample count (post sample-offset drop, pre padding)
	dt         time.Duration
	loop       bool
	useHeading bool
	flyNow     bool

	cursor types.TrackingCursor
}

// New creates an empty trajectory store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Load validates and installs a new trajectory, replacing whatever was
// previously loaded. currentHeading seeds the heading column when the
// trajectory doesn't carry its own. now is the wall-clock time the load
// is being performed at.
//
// On rejection the previously loaded trajectory (if any) is left
// untouched, matching the "trajectory rejection" error kind.
func (s *Store) Load(ref types.TrajectoryReference, currentHeading float64, now time.Time) (types.ServiceResult, error) {
	if ref.Dt < s.cfg.ControlPeriod {
		return types.Fail("trajectory dt is shorter than the control period"), fmt.Errorf("%w: dt %s < control period %s", types.ErrTrajectoryRejected, ref.Dt, s.cfg.ControlPeriod)
	}
	if len(ref.Points) == 0 {
		return types.Fail("trajectory has no points"), fmt.Errorf("%w: empty trajectory", types.ErrTrajectoryRejected)
	}

	age := now.Sub(ref.HeaderStamp)
	if age < 0 {
		age = 0
	}

	sampleOffset := int(age / ref.Dt)
	remainder := age % ref.Dt
	subsampleOffset := int(remainder / s.cfg.ControlPeriod)

	n := len(ref.Points)
	if sampleOffset >= n {
		return types.Fail("trajectory too old: sample offset exceeds length"), fmt.Errorf("%w: sample offset %d >= length %d", types.ErrTrajectoryRejected, sampleOffset, n)
	}

	samples := append([]types.TrajectorySample(nil), ref.Points[sampleOffset:]...)

	if ref.Loop {
		first, last := samples[0], samples[len(samples)-1]
		if distance3D(first, last) > LoopEndpointToleranceMeters {
			return types.Fail("loop endpoints too far"), fmt.Errorf("%w: loop endpoints too far apart", types.ErrTrajectoryRejected)
		}
	} else {
		last := samples[len(samples)-1]
		for i := 0; i < s.cfg.Horizon; i++ {
			samples = append(samples, last)
		}
	}

	if !ref.UseHeading {
		for i := range samples {
			samples[i].Heading = currentHeading
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = samples
	s.n = len(samples)
	if !ref.Loop {
		s.n = len(samples) - s.cfg.Horizon
	}
	s.dt = ref.Dt
	s.loop = ref.Loop
	s.useHeading = ref.UseHeading
	s.flyNow = ref.FlyNow
	s.loaded = true
	s.cursor = types.TrackingCursor{SampleIndex: 0, SubSampleIndex: subsampleOffset}

	log.WithField("samples", s.n).WithField("loop", s.loop).WithField("sample_offset", sampleOffset).Info("trajectory loaded")

	return types.Ok("trajectory loaded"), nil
}

func distance3D(a, b types.TrajectorySample) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Loaded reports whether a trajectory is currently installed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// FlyNow reports the loaded trajectory's fly_now flag.
func (s *Store) FlyNow() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flyNow
}

// Cursor returns a copy of the current tracking cursor.
func (s *Store) Cursor() types.TrackingCursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Length returns the original (unpadded) sample count, for status
// reporting.
func (s *Store) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// AdvanceSubSample increments the cursor's sub-sample index by one; the
// MPC tick calls this every iteration (spec.md section 4.4).
func (s *Store) AdvanceSubSample() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.cursor.Complete {
		return
	}
	s.cursor.SubSampleIndex++
}

// AdvanceSample fires on the dedicated dt-period timer: sub_idx resets to
// zero and cursor_idx advances by one, wrapping (loop) or clamping and
// marking tracking complete otherwise (spec.md section 4.4).
func (s *Store) AdvanceSample() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.cursor.Complete {
		return
	}
	s.cursor.SubSampleIndex = 0
	s.cursor.SampleIndex++
	if s.cursor.SampleIndex >= s.n {
		if s.loop {
			s.cursor.SampleIndex = 0
		} else {
			s.cursor.SampleIndex = s.n - 1
			s.cursor.Complete = true
		}
	}
}

// Horizon produces the H-length desired position reference for the
// current cursor position (spec.md section 4.4).
func (s *Store) Horizon() *types.HorizonReference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.cfg.Horizon
	out := &types.HorizonReference{
		X:       make([]float64, h),
		Y:       make([]float64, h),
		Z:       make([]float64, h),
		Heading: make([]float64, h),
	}
	if !s.loaded || s.n == 0 {
		return out
	}

	dt1 := s.cfg.ControlPeriod.Seconds()
	dt2 := s.cfg.SampleSpacing.Seconds()
	dt := s.dt.Seconds()

	for i := 0; i < h; i++ {
		ti := dt1 + float64(i)*dt2 + float64(s.cursor.SubSampleIndex)*dt1

		a := int(math.Floor(ti/dt)) + s.cursor.SampleIndex
		b := a + 1
		alpha := math.Mod(ti, dt) / dt

		a = s.clampIndex(a)
		b = s.clampIndex(b)

		sa, sb := s.points[a], s.points[b]
		out.X[i] = lerp(sa.X, sb.X, alpha)
		out.Y[i] = lerp(sa.Y, sb.Y, alpha)
		out.Z[i] = lerp(sa.Z, sb.Z, alpha)
		out.Heading[i] = types.ShortestArc(sa.Heading, sb.Heading, alpha)
	}

	return out
}

// ApplyTransform rewrites every loaded sample in place under the write
// lock, used by the frame-change handler (C9) to reconcile a loaded
// trajectory across an odometry source switch.
func (s *Store) ApplyTransform(transform func(x, y, z, heading float64) (float64, float64, float64, float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.points {
		s.points[i].X, s.points[i].Y, s.points[i].Z, s.points[i].Heading =
			transform(s.points[i].X, s.points[i].Y, s.points[i].Z, s.points[i].Heading)
	}
}

func (s *Store) clampIndex(i int) int {
	if s.loop {
		i %= s.n
		if i < 0 {
			i += s.n
		}
		return i
	}
	if i >= len(s.points) {
		return len(s.points) - 1
	}
	if i < 0 {
		return 0
	}
	return i
}

func lerp(a, b, alpha float64) float64 {
	return a + alpha*(b-a)
}

package ghost

import "sort"

// Status of the live runner versus the reference run.
type Status string

const (
	StatusAhead  Status = "AHEAD"
	StatusBehind Status = "BEHIND"
	StatusEven   Status = "EVEN"
)

// Checkpoint is one per-kilometer split of a recorded run.
type Checkpoint struct {
	DistanceM  float64 // cumulative meters at the split
	ElapsedSec float64 // cumulative elapsed seconds at the split
	PaceSecKm  float64 // pace of the kilometer ending here; 0 if unrecorded
}

// Reference is a prior run used as a virtual competitor. Read-only input.
type Reference struct {
	RunID          string
	TotalDistanceM float64
	TotalTimeSec   float64
	Checkpoints    []Checkpoint // ordered by distance ascending
}

// Comparison is the stateless result of one live-vs-ghost evaluation.
type Comparison struct {
	Status      Status
	TimeDiffSec float64 // live elapsed − reference time at live distance
	GapMeters   float64 // |TimeDiffSec| converted via current segment speed
	RefTimeSec  float64
}

// Compare evaluates a live runner's elapsed distance/time against the
// reference. Re-run on every live update; no state is kept between calls.
func Compare(ref *Reference, liveDistanceM, liveElapsedSec float64) *Comparison {
	refTime := ref.timeAt(liveDistanceM)
	diff := liveElapsedSec - refTime

	status := StatusEven
	if diff < 0 {
		status = StatusAhead
	} else if diff > 0 {
		status = StatusBehind
	}

	speed := ref.segmentSpeed(liveDistanceM) // m/s
	gap := diff
	if gap < 0 {
		gap = -gap
	}
	gap *= speed

	return &Comparison{
		Status:      status,
		TimeDiffSec: diff,
		GapMeters:   gap,
		RefTimeSec:  refTime,
	}
}

// timeAt interpolates the reference's elapsed time at the given distance.
// Below the first checkpoint it scales linearly from zero; beyond the last it
// clamps to the final recorded time. Without checkpoints the overall average
// pace approximates it.
func (r *Reference) timeAt(distanceM float64) float64 {
	cps := r.sorted()
	if len(cps) == 0 {
		if r.TotalDistanceM <= 0 {
			return 0
		}
		return r.TotalTimeSec / r.TotalDistanceM * distanceM
	}
	first := cps[0]
	if distanceM <= first.DistanceM {
		if first.DistanceM <= 0 {
			return 0
		}
		return first.ElapsedSec * distanceM / first.DistanceM
	}
	last := cps[len(cps)-1]
	if distanceM >= last.DistanceM {
		return last.ElapsedSec
	}
	for i := 1; i < len(cps); i++ {
		lo, hi := cps[i-1], cps[i]
		if distanceM <= hi.DistanceM {
			frac := (distanceM - lo.DistanceM) / (hi.DistanceM - lo.DistanceM)
			return lo.ElapsedSec + frac*(hi.ElapsedSec-lo.ElapsedSec)
		}
	}
	return last.ElapsedSec
}

// segmentSpeed returns the reference speed in m/s around the given distance,
// taken from the bracketing checkpoint's pace, or the overall average when no
// checkpoints exist.
func (r *Reference) segmentSpeed(distanceM float64) float64 {
	cps := r.sorted()
	if len(cps) == 0 {
		if r.TotalTimeSec <= 0 {
			return 0
		}
		return r.TotalDistanceM / r.TotalTimeSec
	}
	cp := cps[len(cps)-1]
	for i := range cps {
		if distanceM <= cps[i].DistanceM {
			cp = cps[i]
			break
		}
	}
	if cp.PaceSecKm > 0 {
		return 1000 / cp.PaceSecKm
	}
	// pace unrecorded: derive from the segment's own span
	return segmentSpeedFromSplits(cps, cp)
}

func segmentSpeedFromSplits(cps []Checkpoint, cp Checkpoint) float64 {
	var prev Checkpoint
	for i := range cps {
		if cps[i] == cp {
			break
		}
		prev = cps[i]
	}
	dd := cp.DistanceM - prev.DistanceM
	dt := cp.ElapsedSec - prev.ElapsedSec
	if dt <= 0 {
		return 0
	}
	return dd / dt
}

func (r *Reference) sorted() []Checkpoint {
	cps := append([]Checkpoint(nil), r.Checkpoints...)
	sort.Slice(cps, func(i, j int) bool { return cps[i].DistanceM < cps[j].DistanceM })
	return cps
}

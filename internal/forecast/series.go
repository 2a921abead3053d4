package forecast

import (
	"log/slog"
	"sort"
	"time"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

const (
	SlotInterval    = 5 * time.Minute
	SampleTolerance = 5 * time.Minute
	CarbWindow      = 30 * time.Minute
	DefaultLookback = 240 * time.Minute
)

// Slot is one 5-minute step of the assembled series. Glucose is nil when
// no reading was close enough.
type Slot struct {
	Timestamp time.Time
	Glucose   *float64
	Carbs     float64
	Insulin   float64
}

// Series is a fixed cadence view of a user's recent history, oldest first.
type Series struct {
	Slots []Slot
}

// Current returns the most recent glucose value.
func (s Series) Current() (float64, bool) {
	for i := len(s.Slots) - 1; i >= 0; i-- {
		if g := s.Slots[i].Glucose; g != nil {
			return *g, true
		}
	}
	return 0, false
}

// Glucose returns the present glucose values in order.
func (s Series) Glucose() []float64 {
	values := make([]float64, 0, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.Glucose != nil {
			values = append(values, *slot.Glucose)
		}
	}
	return values
}

// ValidCount is the number of slots holding a reading.
func (s Series) ValidCount() int {
	n := 0
	for _, slot := range s.Slots {
		if slot.Glucose != nil {
			n++
		}
	}
	return n
}

// Last returns the final slot, or the zero slot for an empty series.
func (s Series) Last() Slot {
	if len(s.Slots) == 0 {
		return Slot{}
	}
	return s.Slots[len(s.Slots)-1]
}

// Assembler turns irregular readings into a Series.
type Assembler struct {
	band Band
	log  *slog.Logger
}

// NewAssembler creates an assembler that drops readings outside band.
func NewAssembler(band Band) *Assembler {
	return &Assembler{band: band, log: logger.GetLogger()}
}

// Assemble builds slots every 5 minutes over [now-lookback, now]. Each slot
// takes the nearest valid reading within 5 minutes, the earlier reading on
// a tie, and the carbs of all events within 30 minutes.
func (a *Assembler) Assemble(samples []domain.GlucoseSample, carbs []domain.CarbEvent, now time.Time, lookback time.Duration) (Series, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	valid := make([]domain.GlucoseSample, 0, len(samples))
	for _, sample := range samples {
		if !a.band.Contains(sample.Level) {
			a.log.Warn("Skipping implausible glucose reading",
				"level", sample.Level,
				"timestamp", sample.Timestamp,
				"source", sample.Source)
			continue
		}
		valid = append(valid, sample)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})

	start := now.Add(-lookback)
	n := int(lookback/SlotInterval) + 1
	slots := make([]Slot, 0, n)
	found := 0

	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * SlotInterval)
		slot := Slot{Timestamp: ts}

		if g, ok := nearest(valid, ts); ok {
			slot.Glucose = &g
			found++
		}
		for _, ev := range carbs {
			if absDuration(ev.Timestamp.Sub(ts)) <= CarbWindow {
				slot.Carbs += ev.Carbs
				if ev.Insulin != nil {
					slot.Insulin += *ev.Insulin
				}
			}
		}
		slots = append(slots, slot)
	}

	if found == 0 {
		return Series{}, apperrors.NewInsufficientDataError("No valid glucose readings in the lookback window")
	}
	return Series{Slots: slots}, nil
}

// nearest finds the closest reading to ts within SampleTolerance in a
// sorted slice.
func nearest(sorted []domain.GlucoseSample, ts time.Time) (float64, bool) {
	lo := ts.Add(-SampleTolerance)
	i := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(lo)
	})

	best := -1
	var bestDist time.Duration
	for ; i < len(sorted); i++ {
		d := sorted[i].Timestamp.Sub(ts)
		if d > SampleTolerance {
			break
		}
		if d = absDuration(d); best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, false
	}
	return sorted[best].Level, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

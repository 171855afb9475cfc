package xlsxrd

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Display-zone inference. A model workbook stores date cells as serials,
// which read as UTC instants; a rendered export of the same data stores
// the strings some viewer displayed in its local zone. Formatting the
// model's instants into each candidate zone and counting exact string
// matches against the rendered cells recovers that zone.

// DefaultZones are the candidate display zones tried when the caller
// does not supply a list: the contiguous US zones plus UTC.
var DefaultZones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"UTC",
}

// DefaultMaxSamples bounds how many paired rows contribute evidence.
const DefaultMaxSamples = 25

// ZoneResolver infers the display zone of a rendered export from a model
// workbook holding the same rows.
type ZoneResolver struct {
	// KeyField joins model rows to rendered rows. Empty means the two
	// record lists are pairwise aligned already.
	KeyField string

	// DateFields are the record fields holding dates, serial on the
	// model side and rendered text on the other.
	DateFields []string

	// Zones are the candidate zone names, tried in order. Nil selects
	// DefaultZones.
	Zones []string

	// MaxSamples caps the number of paired rows examined for evidence.
	// Zero selects DefaultMaxSamples.
	MaxSamples int

	// Logger receives per-zone scoring diagnostics. Nil disables them.
	Logger *zap.Logger
}

type zoneSample struct {
	when    time.Time
	display string
}

// Infer returns the zone name whose rendering of the model's dates
// matches the rendered cells most often. Ties keep the zone listed
// first, and a zone can win with zero matches as long as date evidence
// exists at all; the second result is false only when no paired row
// yields a usable date, or no candidate zone loads.
func (zr *ZoneResolver) Infer(model, rendered []Record) (string, bool) {
	logger := zr.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	zones := zr.Zones
	if len(zones) == 0 {
		zones = DefaultZones
	}

	samples := zr.collectSamples(model, rendered)
	if len(samples) == 0 {
		return "", false
	}

	best, bestScore := "", -1
	for _, name := range zones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			logger.Debug("skipping unloadable zone", zap.String("zone", name), zap.Error(err))
			continue
		}
		score := 0
		for _, s := range samples {
			if FormatInZone(s.when, loc) == s.display {
				score++
			}
		}
		logger.Debug("zone scored",
			zap.String("zone", name),
			zap.Int("matches", score),
			zap.Int("samples", len(samples)),
		)
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// collectSamples pairs rows and pulls (instant, displayed string) pairs
// from the date fields. A row counts against the sample cap only when it
// contributes at least one usable date.
func (zr *ZoneResolver) collectSamples(model, rendered []Record) []zoneSample {
	maxRows := zr.MaxSamples
	if maxRows <= 0 {
		maxRows = DefaultMaxSamples
	}
	var (
		samples []zoneSample
		rows    int
	)
	add := func(m, r Record) bool {
		contributed := false
		for _, field := range zr.DateFields {
			when, ok := DateOf(m[field])
			if !ok {
				continue
			}
			display := strings.TrimSpace(r[field].String())
			if display == "" {
				continue
			}
			samples = append(samples, zoneSample{when: when, display: display})
			contributed = true
		}
		if contributed {
			rows++
		}
		return rows < maxRows
	}

	if zr.KeyField == "" {
		n := len(model)
		if len(rendered) < n {
			n = len(rendered)
		}
		for i := 0; i < n; i++ {
			if !add(model[i], rendered[i]) {
				break
			}
		}
		return samples
	}

	byKey := make(map[string]Record, len(rendered))
	for _, r := range rendered {
		k := NormalizeKey(r[zr.KeyField].String())
		if k == "" {
			continue
		}
		if _, dup := byKey[k]; !dup {
			byKey[k] = r
		}
	}
	for _, m := range model {
		k := NormalizeKey(m[zr.KeyField].String())
		if k == "" {
			continue
		}
		r, ok := byKey[k]
		if !ok {
			continue
		}
		if !add(m, r) {
			break
		}
	}
	return samples
}

// NormalizeKey canonicalizes a join key for matching rows across files:
// surrounding space is trimmed and case is folded.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

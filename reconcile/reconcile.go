// Package reconcile compares a model workbook's records against a
// rendered export of the same data: it keeps the latest row per key on
// both sides, copies selected model columns into the output shape, and
// reports per-field disagreements. When candidate zones are supplied the
// display zone of the rendered file is inferred first, so date cells
// compare as instants rather than as clock strings.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yamitzky/xlsxrd-go/xlsxrd"
)

// ColumnPair names a column copied from the model side into the merged
// output.
type ColumnPair struct {
	From string
	To   string
}

// Config controls one reconciliation run.
type Config struct {
	// KeyField joins and dedupes rows on both sides. Required.
	KeyField string

	// OrderField picks the surviving row among rows sharing a key; it
	// holds a date, serial on the model side and rendered text on the
	// other. Rows whose order value is not a date lose to rows whose
	// value is; when no row has one, the last row in file order wins.
	OrderField string

	// CompareColumns are checked for agreement between the two sides.
	CompareColumns []string

	// CopyColumns are written from the model row into the merged output.
	CopyColumns []ColumnPair

	// Zones, when non-empty, enables display-zone inference. A compared
	// model date then renders in the winning zone before the comparison,
	// provided the other side's text reads as a date at all.
	Zones []string

	// Headers fixes the output column order. Copy targets not already
	// present are appended. Nil derives an alphabetical order from the
	// merged rows.
	Headers []string

	// Logger receives inference and merge diagnostics. Nil disables them.
	Logger *zap.Logger
}

// Mismatch is one field-level disagreement.
type Mismatch struct {
	Key   string
	Field string
	Want  string
	Got   string
}

// Result is the outcome of one reconciliation run.
type Result struct {
	Headers           []string
	Rows              []xlsxrd.Record
	Mismatches        []Mismatch
	MissingInModel    []string
	MissingInRendered []string
	Zone              string
}

// LatestByKey reduces records to one survivor per normalized key. The
// survivor is the row whose order-field date is greatest; a row without
// a usable date loses to any row with one, and equal standing goes to
// the row later in file order. Rows with an empty key are skipped.
func LatestByKey(records []xlsxrd.Record, keyField, orderField string) map[string]xlsxrd.Record {
	type pick struct {
		rec   xlsxrd.Record
		when  time.Time
		dated bool
	}
	latest := make(map[string]pick)
	for _, rec := range records {
		key := xlsxrd.NormalizeKey(rec[keyField].String())
		if key == "" {
			continue
		}
		when, dated := xlsxrd.DateOf(rec[orderField])
		prev, seen := latest[key]
		switch {
		case !seen:
		case dated && !prev.dated:
		case dated == prev.dated && (!dated || !when.Before(prev.when)):
		default:
			continue
		}
		latest[key] = pick{rec: rec, when: when, dated: dated}
	}
	out := make(map[string]xlsxrd.Record, len(latest))
	for key, p := range latest {
		out[key] = p.rec
	}
	return out
}

// Reconcile joins the two record sets by key and compares them per the
// config. Model and rendered carry full file contents; deduplication
// happens here.
func Reconcile(model, rendered []xlsxrd.Record, cfg Config) (*Result, error) {
	if cfg.KeyField == "" {
		return nil, errors.New("reconcile: key field required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var loc *time.Location
	result := &Result{}
	if len(cfg.Zones) > 0 {
		resolver := &xlsxrd.ZoneResolver{
			KeyField:   cfg.KeyField,
			DateFields: dateFields(cfg),
			Zones:      cfg.Zones,
			Logger:     logger,
		}
		if zone, ok := resolver.Infer(model, rendered); ok {
			l, err := time.LoadLocation(zone)
			if err != nil {
				return nil, errors.Wrapf(err, "load zone %s", zone)
			}
			loc = l
			result.Zone = zone
			logger.Debug("display zone inferred", zap.String("zone", zone))
		} else {
			logger.Warn("no date evidence for zone inference; comparing dates as text")
		}
	}

	modelByKey := LatestByKey(model, cfg.KeyField, cfg.OrderField)
	renderedByKey := LatestByKey(rendered, cfg.KeyField, cfg.OrderField)

	keys := make([]string, 0, len(renderedByKey))
	for key := range renderedByKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		renderedRec := renderedByKey[key]
		displayKey := strings.TrimSpace(renderedRec[cfg.KeyField].String())
		modelRec, ok := modelByKey[key]
		if !ok {
			result.MissingInModel = append(result.MissingInModel, displayKey)
			continue
		}

		merged := make(xlsxrd.Record, len(renderedRec)+len(cfg.CopyColumns))
		for field, v := range renderedRec {
			merged[field] = v
		}
		for _, pair := range cfg.CopyColumns {
			merged[pair.To] = modelRec[pair.From]
		}
		result.Rows = append(result.Rows, merged)

		for _, field := range cfg.CompareColumns {
			want := strings.TrimSpace(modelRec[field].String())
			got := strings.TrimSpace(renderedRec[field].String())
			if loc != nil && modelRec[field].Kind == xlsxrd.CellNumber {
				if when, isSerial := xlsxrd.DateOf(modelRec[field]); isSerial {
					if _, isDate := xlsxrd.ParseDateString(got); isDate {
						want = xlsxrd.FormatInZone(when, loc)
					}
				}
			}
			if want != got {
				result.Mismatches = append(result.Mismatches, Mismatch{
					Key:   displayKey,
					Field: field,
					Want:  want,
					Got:   got,
				})
			}
		}
	}

	modelKeys := make([]string, 0, len(modelByKey))
	for key := range modelByKey {
		modelKeys = append(modelKeys, key)
	}
	sort.Strings(modelKeys)
	for _, key := range modelKeys {
		if _, ok := renderedByKey[key]; !ok {
			displayKey := strings.TrimSpace(modelByKey[key][cfg.KeyField].String())
			result.MissingInRendered = append(result.MissingInRendered, displayKey)
		}
	}

	result.Headers = outputHeaders(cfg, result.Rows)
	logger.Debug("reconciled",
		zap.Int("rows", len(result.Rows)),
		zap.Int("mismatches", len(result.Mismatches)),
		zap.Int("missing_in_model", len(result.MissingInModel)),
		zap.Int("missing_in_rendered", len(result.MissingInRendered)),
	)
	return result, nil
}

// dateFields lists every configured field that may hold a date, for
// zone-inference sampling. Fields without dates contribute no evidence,
// so over-listing is harmless.
func dateFields(cfg Config) []string {
	fields := make([]string, 0, len(cfg.CompareColumns)+1)
	seen := map[string]bool{}
	for _, f := range append(append([]string{}, cfg.CompareColumns...), cfg.OrderField) {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields
}

// outputHeaders settles the output column order: the configured order
// with copy targets appended, or an alphabetical union of the merged
// rows' fields.
func outputHeaders(cfg Config, rows []xlsxrd.Record) []string {
	if cfg.Headers != nil {
		headers := append([]string{}, cfg.Headers...)
		present := make(map[string]bool, len(headers))
		for _, h := range headers {
			present[h] = true
		}
		for _, pair := range cfg.CopyColumns {
			if !present[pair.To] {
				present[pair.To] = true
				headers = append(headers, pair.To)
			}
		}
		return headers
	}
	seen := map[string]bool{}
	var headers []string
	for _, rec := range rows {
		for field := range rec {
			if !seen[field] {
				seen[field] = true
				headers = append(headers, field)
			}
		}
	}
	sort.Strings(headers)
	return headers
}

package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/clock"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/notify"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/storage"
)

const (
	lowSleepHours     = 6.0
	lowScoreThreshold = 70.0
	lateWakeHour      = 9.0
)

// AlertSink receives out-of-band notifications (support-contact escalation).
type AlertSink interface {
	Push(ctx context.Context, a notify.Alert) error
}

// thresholdRule fires when `check` holds for at least `run` consecutive
// records among the newest `window`. check's second return reports whether
// the record carries the data at all: a record without the optional signal
// breaks the run instead of counting either way, so missing metadata is
// never itself a pattern.
type thresholdRule struct {
	typ      internal.PatternType
	severity internal.Severity
	run      int
	window   int
	check    func(r *internal.CheckInRecord) (satisfied, hasData bool)
}

// Detector evaluates the pattern rule catalog over each user's recent
// check-in history. Scans are idempotent: an open event dedupes by
// (user, type) and is auto-resolved once its condition stops holding.
type Detector struct {
	store  storage.Store
	sink   AlertSink
	clock  clock.Clock
	logger internal.Logger

	window         int
	minSample      int
	correlationPct int
	rules          []thresholdRule
}

func NewDetector(store storage.Store, sink AlertSink, clk clock.Clock, cfg *config.Config, logger internal.Logger) *Detector {
	return &Detector{
		store:          store,
		sink:           sink,
		clock:          clk,
		logger:         logger,
		window:         cfg.PatternWindow,
		minSample:      cfg.PatternMinSample,
		correlationPct: cfg.CorrelationPct,
		rules: []thresholdRule{
			{
				typ:      internal.PatternSleepDegradation,
				severity: internal.SeverityWarning,
				run:      3,
				window:   3,
				check:    checkLowSleep,
			},
			{
				typ:      internal.PatternTrainingNeglect,
				severity: internal.SeverityWarning,
				run:      3,
				window:   3,
				check: func(r *internal.CheckInRecord) (bool, bool) {
					a, ok := r.Answer(catalog.ItemTraining)
					if !ok {
						return false, false
					}
					return !a.Done, true
				},
			},
			{
				typ:      internal.PatternComplianceDecline,
				severity: internal.SeverityHigh,
				run:      3,
				window:   3,
				check: func(r *internal.CheckInRecord) (bool, bool) {
					return r.ComplianceScore < lowScoreThreshold, true
				},
			},
			{
				typ:      internal.PatternLateWake,
				severity: internal.SeverityInfo,
				run:      3,
				window:   5,
				check: func(r *internal.CheckInRecord) (bool, bool) {
					wake, ok := r.Meta(internal.MetaWakeHour)
					if !ok {
						return false, false
					}
					return wake >= lateWakeHour, true
				},
			},
		},
	}
}

func checkLowSleep(r *internal.CheckInRecord) (bool, bool) {
	a, ok := r.Answer(catalog.ItemSleep)
	if !ok || a.Hours == nil {
		return false, false
	}
	return *a.Hours < lowSleepHours, true
}

func checkBoundaryFail(r *internal.CheckInRecord) bool {
	a, ok := r.Answer(catalog.ItemBoundaries)
	return ok && !a.Done
}

func checkSecondaryFail(r *internal.CheckInRecord) bool {
	if sat, has := checkLowSleep(r); has && sat {
		return true
	}
	a, ok := r.Answer(catalog.ItemTraining)
	return ok && !a.Done
}

// RunScan evaluates every rule for every known user. A failure for one user
// is logged and never aborts the rest of the batch.
func (d *Detector) RunScan(ctx context.Context, asOf time.Time) ([]internal.PatternEvent, error) {
	ids, err := d.store.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	var emitted []internal.PatternEvent
	for _, userID := range ids {
		events, err := d.scanUser(ctx, userID, asOf)
		if err != nil {
			d.logger.Errorf("pattern scan failed for user %s: %v", userID, err)
			continue
		}
		emitted = append(emitted, events...)
	}
	return emitted, nil
}

type firing struct {
	severity internal.Severity
	evidence map[string]interface{}
}

func (d *Detector) scanUser(ctx context.Context, userID string, asOf time.Time) ([]internal.PatternEvent, error) {
	records, err := d.store.RecentRecords(ctx, userID, d.window)
	if err != nil {
		return nil, err
	}

	fired := make(map[internal.PatternType]firing)
	for _, rule := range d.rules {
		if f, ok := evalThresholdRule(rule, records); ok {
			fired[rule.typ] = f
		}
	}
	if f, ok := d.evalCorrelation(records); ok {
		fired[internal.PatternBoundaryCorrelation] = f
	}

	scanTypes := make([]internal.PatternType, 0, len(d.rules)+1)
	for _, r := range d.rules {
		scanTypes = append(scanTypes, r.typ)
	}
	scanTypes = append(scanTypes, internal.PatternBoundaryCorrelation)

	return d.reconcile(ctx, userID, scanTypes, fired, asOf)
}

// reconcile turns this scan's firings into at most one open event per type:
// new firings append, unchanged firings dedupe, escalations replace, and
// rules that stopped firing close their open event.
func (d *Detector) reconcile(ctx context.Context, userID string, types []internal.PatternType, fired map[internal.PatternType]firing, asOf time.Time) ([]internal.PatternEvent, error) {
	var emitted []internal.PatternEvent
	for _, typ := range types {
		open, err := d.store.OpenEvent(ctx, userID, typ)
		if err != nil {
			return nil, err
		}
		f, isFiring := fired[typ]

		switch {
		case isFiring && open == nil:
			ev := internal.PatternEvent{
				ID:         uuid.NewString(),
				UserID:     userID,
				Type:       typ,
				Severity:   f.severity,
				DetectedAt: asOf,
				Evidence:   f.evidence,
			}
			if err := d.store.AppendEvent(ctx, &ev); err != nil {
				return nil, err
			}
			emitted = append(emitted, ev)

		case isFiring && open.Severity != f.severity:
			// Severity moved: close the stale event and open the new tier.
			if err := d.store.ResolveEvent(ctx, open.ID, asOf); err != nil {
				return nil, err
			}
			ev := internal.PatternEvent{
				ID:         uuid.NewString(),
				UserID:     userID,
				Type:       typ,
				Severity:   f.severity,
				DetectedAt: asOf,
				Evidence:   f.evidence,
			}
			if err := d.store.AppendEvent(ctx, &ev); err != nil {
				return nil, err
			}
			emitted = append(emitted, ev)

		case !isFiring && open != nil:
			if err := d.store.ResolveEvent(ctx, open.ID, asOf); err != nil {
				return nil, err
			}
		}
	}
	return emitted, nil
}

// evalThresholdRule counts consecutive satisfying records from the newest
// backwards; a record lacking the rule's data breaks the run.
func evalThresholdRule(rule thresholdRule, records []internal.CheckInRecord) (firing, bool) {
	window := records
	if len(window) > rule.window {
		window = window[:rule.window]
	}
	if len(window) < rule.run {
		return firing{}, false
	}

	run := 0
	var days []string
	for i := range window {
		sat, has := rule.check(&window[i])
		if !has || !sat {
			break
		}
		run++
		days = append(days, string(window[i].DayKey))
	}
	if run < rule.run {
		return firing{}, false
	}
	return firing{
		severity: rule.severity,
		evidence: map[string]interface{}{
			"run":    run,
			"window": len(window),
			"days":   days,
		},
	}, true
}

// evalCorrelation detects co-occurrence: of the records where the boundary
// item failed, what share also had sleep or training failing. It never fires
// below the minimum sample size, so a 1-of-1 coincidence stays quiet.
func (d *Detector) evalCorrelation(records []internal.CheckInRecord) (firing, bool) {
	a, b := 0, 0
	for i := range records {
		if !checkBoundaryFail(&records[i]) {
			continue
		}
		a++
		if checkSecondaryFail(&records[i]) {
			b++
		}
	}
	if a < d.minSample {
		return firing{}, false
	}
	pct := 100 * float64(b) / float64(a)
	if pct <= float64(d.correlationPct) {
		return firing{}, false
	}
	return firing{
		severity: internal.SeverityHigh,
		evidence: map[string]interface{}{
			"correlation_pct": int(math.Round(pct)),
			"sample":          a,
			"cooccurrences":   b,
			"window":          len(records),
		},
	}, true
}

// RunGhostingScan checks how long each user has been silent. It reads only
// last_checkin_day, since during a gap there are no records to inspect.
// Severity escalates by day; at the critical tier a support-contact alert is
// pushed to the sink.
func (d *Detector) RunGhostingScan(ctx context.Context, asOf time.Time) ([]internal.PatternEvent, error) {
	ids, err := d.store.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	var emitted []internal.PatternEvent
	for _, userID := range ids {
		events, err := d.ghostUser(ctx, userID, asOf)
		if err != nil {
			d.logger.Errorf("ghosting scan failed for user %s: %v", userID, err)
			continue
		}
		emitted = append(emitted, events...)
	}
	return emitted, nil
}

func (d *Detector) ghostUser(ctx context.Context, userID string, asOf time.Time) ([]internal.PatternEvent, error) {
	st, err := d.store.GetUserState(ctx, userID)
	if err != nil {
		return nil, err
	}
	fired := make(map[internal.PatternType]firing)
	gap := 0
	if st != nil && st.Streak.LastCheckInDay != nil {
		today := clock.LogicalDay(asOf, st.Timezone, st.CutoffHour)
		gap = internal.DaysBetween(*st.Streak.LastCheckInDay, today)
		if sev, ok := ghostingSeverity(gap); ok {
			fired[internal.PatternGhosting] = firing{
				severity: sev,
				evidence: map[string]interface{}{
					"days_silent":      gap,
					"last_checkin_day": string(*st.Streak.LastCheckInDay),
				},
			}
		}
	}

	events, err := d.reconcile(ctx, userID, []internal.PatternType{internal.PatternGhosting}, fired, asOf)
	if err != nil {
		return nil, err
	}
	// The support contact is alerted once, when the critical tier opens, not
	// on every scan the condition persists through.
	for _, ev := range events {
		if ev.Severity != internal.SeverityCritical {
			continue
		}
		alert := notify.Alert{
			UserID:   userID,
			Kind:     "ghosting_support_contact",
			Severity: ev.Severity.String(),
			Message:  fmt.Sprintf("no check-in for %d days, notify support contact", gap),
			At:       asOf,
		}
		if err := d.sink.Push(ctx, alert); err != nil {
			d.logger.Errorf("failed to push support-contact alert for user %s: %v", userID, err)
		}
	}
	return events, nil
}

func ghostingSeverity(gap int) (internal.Severity, bool) {
	switch {
	case gap >= 5:
		return internal.SeverityCritical, true
	case gap == 4:
		return internal.SeverityHigh, true
	case gap == 3:
		return internal.SeverityWarning, true
	case gap == 2:
		return internal.SeverityInfo, true
	}
	return 0, false
}

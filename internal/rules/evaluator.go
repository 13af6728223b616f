// Package rules computes maintenance alerts for a single vehicle at a single
// instant. Evaluation is pure: clearance state is passed in, never read from a
// store, so the same inputs always produce the same alert set. Both the dispatch
// pipeline and the vehicle-detail read endpoint evaluate through this package,
// so the threshold arithmetic exists in exactly one place.
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/st20medic/trucks/internal/domain"
)

type Ruleset struct {
	Mileage         map[domain.AlertKind]domain.MileageRule
	Documents       map[domain.AlertKind]domain.DocumentRule
	ClearanceWindow time.Duration
	Order           []domain.AlertKind
}

// DefaultRuleset returns the fleet's fixed business thresholds with the 7-day
// clearance window.
func DefaultRuleset() Ruleset {
	rs := Ruleset{
		Mileage:         make(map[domain.AlertKind]domain.MileageRule, len(domain.DefaultMileageRules)),
		Documents:       make(map[domain.AlertKind]domain.DocumentRule, len(domain.DefaultDocumentRules)),
		ClearanceWindow: 7 * 24 * time.Hour,
		Order:           domain.KindOrder,
	}
	for _, r := range domain.DefaultMileageRules {
		rs.Mileage[r.Kind] = r
	}
	for _, r := range domain.DefaultDocumentRules {
		rs.Documents[r.Kind] = r
	}
	return rs
}

// Evaluate returns the alert set for one vehicle in fixed kind order. A kind
// inside its clearance window is forced to no-alert regardless of thresholds.
// The out-of-service flag is not handled here: it is current truth rather than
// a recurring warning, and the pipeline includes it without any gate.
func (rs Ruleset) Evaluate(v domain.VehicleSnapshot, cleared domain.ClearanceState, now time.Time) []domain.Alert {
	var alerts []domain.Alert
	for _, kind := range rs.Order {
		if cleared.Suppresses(kind, now, rs.ClearanceWindow) {
			continue
		}
		if r, ok := rs.Mileage[kind]; ok {
			if a, fired := evalMileage(v, r); fired {
				alerts = append(alerts, a)
			}
			continue
		}
		if r, ok := rs.Documents[kind]; ok {
			if a, fired := evalDocument(v, r, now); fired {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts
}

func evalMileage(v domain.VehicleSnapshot, r domain.MileageRule) (domain.Alert, bool) {
	// A vehicle with no recorded service counts as due since odometer zero.
	var lastOdo int64
	if rec, ok := v.LastService[r.Kind]; ok {
		lastOdo = rec.Odometer
	}
	nextDue := lastOdo + r.IntervalMiles

	switch {
	case v.Odometer >= nextDue:
		return domain.Alert{
			Kind:      r.Kind,
			Severity:  domain.SeverityOverdue,
			VehicleID: v.ID,
			Message: fmt.Sprintf("%s overdue by %d miles (last service at %d mi, due at %d mi)",
				r.Kind.Label(), v.Odometer-nextDue, lastOdo, nextDue),
		}, true
	case v.Odometer >= nextDue-r.WarningMiles:
		return domain.Alert{
			Kind:      r.Kind,
			Severity:  domain.SeverityDueSoon,
			VehicleID: v.ID,
			Message: fmt.Sprintf("%s due in %d miles (due at %d mi)",
				r.Kind.Label(), nextDue-v.Odometer, nextDue),
		}, true
	default:
		return domain.Alert{}, false
	}
}

func evalDocument(v domain.VehicleSnapshot, r domain.DocumentRule, now time.Time) (domain.Alert, bool) {
	expiry, ok := v.DocumentExpiry[r.Kind]
	if !ok || expiry.IsZero() {
		// Not yet configured for this vehicle; not an error.
		return domain.Alert{}, false
	}

	days := daysUntil(now, expiry)
	switch {
	case days <= 0:
		return domain.Alert{
			Kind:      r.Kind,
			Severity:  domain.SeverityOverdue,
			VehicleID: v.ID,
			Message: fmt.Sprintf("%s expired on %s",
				r.Kind.Label(), expiry.Format("Jan 2, 2006")),
		}, true
	case days <= r.WarningDays:
		return domain.Alert{
			Kind:      r.Kind,
			Severity:  domain.SeverityDueSoon,
			VehicleID: v.ID,
			Message: fmt.Sprintf("%s expires in %d days (%s)",
				r.Kind.Label(), days, expiry.Format("Jan 2, 2006")),
		}, true
	default:
		return domain.Alert{}, false
	}
}

// daysUntil rounds up, so a document expiring later today is already overdue
// (0 days) and one expiring exactly N*24h from now counts as N days out.
func daysUntil(now, expiry time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

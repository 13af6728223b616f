package domain

import "time"

type ServiceStatus string

const (
	StatusInService    ServiceStatus = "IN_SERVICE"
	StatusOutOfService ServiceStatus = "OUT_OF_SERVICE"
)

type AlertKind string

const (
	KindOilChange    AlertKind = "OIL_CHANGE"
	KindRegistration AlertKind = "REGISTRATION"
	KindInspection   AlertKind = "INSPECTION"
	KindBrakeService AlertKind = "BRAKE_SERVICE"
	KindTireService  AlertKind = "TIRE_SERVICE"
)

// KindOrder is the fixed order alerts are reported and rendered in.
var KindOrder = []AlertKind{
	KindOilChange,
	KindRegistration,
	KindInspection,
	KindBrakeService,
	KindTireService,
}

// Labels used in digest messages and the accountability log.
var kindLabels = map[AlertKind]string{
	KindOilChange:    "Oil change",
	KindRegistration: "Registration",
	KindInspection:   "State inspection",
	KindBrakeService: "Brake service",
	KindTireService:  "Tire service",
}

func (k AlertKind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

func (k AlertKind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

type AlertSeverity string

const (
	SeverityDueSoon AlertSeverity = "DUE_SOON"
	SeverityOverdue AlertSeverity = "OVERDUE"
)

// ServiceRecord is the last completed service for one mileage-based item.
type ServiceRecord struct {
	Odometer int64
	Date     time.Time
}

// VehicleSnapshot is the read-only input to rule evaluation. LastService has
// an entry only for items that have been serviced at least once; DocumentExpiry
// has an entry only for documents that have been configured.
type VehicleSnapshot struct {
	ID                 string
	UnitLabel          string
	Odometer           int64
	ServiceStatus      ServiceStatus
	OutOfServiceReason string
	LastService        map[AlertKind]ServiceRecord
	DocumentExpiry     map[AlertKind]time.Time
	UpdatedAt          time.Time
}

func (v VehicleSnapshot) OutOfService() bool {
	return v.ServiceStatus == StatusOutOfService
}

// Alert is transient: computed during one evaluation pass, rendered into one
// digest, never persisted.
type Alert struct {
	Kind      AlertKind     `json:"kind"`
	Severity  AlertSeverity `json:"severity"`
	VehicleID string        `json:"vehicle_id"`
	Message   string        `json:"message"`
}

// ClearanceState maps alert kind to the last time a mechanic dismissed it.
// An absent entry means never cleared. Stale entries are harmless: once older
// than the clearance window they stop suppressing and are simply overwritten
// by the next clearance.
type ClearanceState map[AlertKind]time.Time

// Suppresses reports whether kind is inside its clearance window at now.
func (c ClearanceState) Suppresses(kind AlertKind, now time.Time, window time.Duration) bool {
	clearedAt, ok := c[kind]
	if !ok {
		return false
	}
	return now.Sub(clearedAt) <= window
}

// SuppressionRecord tracks the last successful digest that included a vehicle.
type SuppressionRecord struct {
	VehicleID       string
	LastBatchSentAt *time.Time
}

// AccountabilityRecord is the immutable trail entry for one clearance. Every
// successful Clear produces exactly one.
type AccountabilityRecord struct {
	ID              string     `json:"id"`
	VehicleID       string     `json:"vehicle_id"`
	Kind            AlertKind  `json:"kind"`
	ClearedAt       time.Time  `json:"cleared_at"`
	ClearedOdometer int64      `json:"cleared_odometer"`
	ClearedExpiry   *time.Time `json:"cleared_expiry,omitempty"`
	Justification   string     `json:"justification"`
	Author          string     `json:"author"`
}

// MileageRule defines one interval-based maintenance item.
type MileageRule struct {
	Kind          AlertKind
	IntervalMiles int64
	WarningMiles  int64
}

// DocumentRule defines one date-deadline compliance document.
type DocumentRule struct {
	Kind        AlertKind
	WarningDays int
}

// Fixed business thresholds. Overridable through config, these are the defaults.
var DefaultMileageRules = []MileageRule{
	{Kind: KindOilChange, IntervalMiles: 5000, WarningMiles: 500},
	{Kind: KindBrakeService, IntervalMiles: 25000, WarningMiles: 2500},
	{Kind: KindTireService, IntervalMiles: 40000, WarningMiles: 4000},
}

var DefaultDocumentRules = []DocumentRule{
	{Kind: KindRegistration, WarningDays: 30},
	{Kind: KindInspection, WarningDays: 30},
}

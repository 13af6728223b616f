package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st20medic/trucks/internal/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// quietVehicle has every item comfortably inside its thresholds.
func quietVehicle() domain.VehicleSnapshot {
	return domain.VehicleSnapshot{
		ID:            "unit-201",
		UnitLabel:     "Medic 201",
		Odometer:      50000,
		ServiceStatus: domain.StatusInService,
		LastService: map[domain.AlertKind]domain.ServiceRecord{
			domain.KindOilChange:    {Odometer: 49000},
			domain.KindBrakeService: {Odometer: 48000},
			domain.KindTireService:  {Odometer: 45000},
		},
		DocumentExpiry: map[domain.AlertKind]time.Time{
			domain.KindRegistration: testNow.AddDate(0, 6, 0),
			domain.KindInspection:   testNow.AddDate(0, 6, 0),
		},
	}
}

func TestEvaluateQuietVehicle(t *testing.T) {
	rs := DefaultRuleset()
	alerts := rs.Evaluate(quietVehicle(), nil, testNow)
	assert.Empty(t, alerts)
}

func TestMileageBoundaries(t *testing.T) {
	rs := DefaultRuleset()

	tests := []struct {
		name         string
		odometer     int64
		wantSeverity domain.AlertSeverity
		wantNone     bool
		wantContains string
	}{
		{name: "one mile short of warning window", odometer: 104499, wantNone: true},
		{name: "exactly at warning margin", odometer: 104500, wantSeverity: domain.SeverityDueSoon, wantContains: "due in 500 miles"},
		{name: "exactly at next due", odometer: 105000, wantSeverity: domain.SeverityOverdue, wantContains: "overdue by 0 miles"},
		{name: "past due", odometer: 106200, wantSeverity: domain.SeverityOverdue, wantContains: "overdue by 1200 miles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := quietVehicle()
			v.Odometer = tt.odometer
			v.LastService[domain.KindOilChange] = domain.ServiceRecord{Odometer: 100000}
			// Keep the other mileage items quiet at these odometers.
			v.LastService[domain.KindBrakeService] = domain.ServiceRecord{Odometer: 100000}
			v.LastService[domain.KindTireService] = domain.ServiceRecord{Odometer: 100000}

			alerts := rs.Evaluate(v, nil, testNow)
			var oil *domain.Alert
			for i := range alerts {
				if alerts[i].Kind == domain.KindOilChange {
					oil = &alerts[i]
				}
			}

			if tt.wantNone {
				assert.Nil(t, oil)
				return
			}
			require.NotNil(t, oil)
			assert.Equal(t, tt.wantSeverity, oil.Severity)
			assert.Contains(t, oil.Message, tt.wantContains)
			assert.Equal(t, "unit-201", oil.VehicleID)
		})
	}
}

func TestDocumentBoundaries(t *testing.T) {
	rs := DefaultRuleset()

	tests := []struct {
		name         string
		expiry       time.Time
		wantSeverity domain.AlertSeverity
		wantNone     bool
	}{
		{name: "expires today", expiry: testNow, wantSeverity: domain.SeverityOverdue},
		{name: "expired last month", expiry: testNow.AddDate(0, -1, 0), wantSeverity: domain.SeverityOverdue},
		{name: "expires in exactly 30 days", expiry: testNow.AddDate(0, 0, 30), wantSeverity: domain.SeverityDueSoon},
		{name: "expires in 31 days", expiry: testNow.AddDate(0, 0, 31), wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := quietVehicle()
			v.DocumentExpiry[domain.KindRegistration] = tt.expiry

			alerts := rs.Evaluate(v, nil, testNow)
			var reg *domain.Alert
			for i := range alerts {
				if alerts[i].Kind == domain.KindRegistration {
					reg = &alerts[i]
				}
			}

			if tt.wantNone {
				assert.Nil(t, reg)
				return
			}
			require.NotNil(t, reg)
			assert.Equal(t, tt.wantSeverity, reg.Severity)
		})
	}
}

func TestClearanceGate(t *testing.T) {
	rs := DefaultRuleset()
	v := quietVehicle()
	v.Odometer = 106000
	v.LastService[domain.KindOilChange] = domain.ServiceRecord{Odometer: 100000}
	v.LastService[domain.KindBrakeService] = domain.ServiceRecord{Odometer: 101000}
	v.LastService[domain.KindTireService] = domain.ServiceRecord{Odometer: 101000}

	// Overdue and never cleared: fires.
	alerts := rs.Evaluate(v, nil, testNow)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.KindOilChange, alerts[0].Kind)

	// Cleared six days ago: silenced even though overdue.
	cleared := domain.ClearanceState{domain.KindOilChange: testNow.AddDate(0, 0, -6)}
	assert.Empty(t, rs.Evaluate(v, cleared, testNow))

	// Cleared eight days ago: window elapsed, fires again.
	cleared[domain.KindOilChange] = testNow.AddDate(0, 0, -8)
	alerts = rs.Evaluate(v, cleared, testNow)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.KindOilChange, alerts[0].Kind)

	// Clearing one kind never silences another.
	cleared = domain.ClearanceState{domain.KindBrakeService: testNow.AddDate(0, 0, -1)}
	alerts = rs.Evaluate(v, cleared, testNow)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.KindOilChange, alerts[0].Kind)
}

func TestMissingOptionalFields(t *testing.T) {
	rs := DefaultRuleset()

	// No service history at all: every mileage item is due since odometer zero.
	v := domain.VehicleSnapshot{ID: "unit-x", Odometer: 50000, ServiceStatus: domain.StatusInService}
	alerts := rs.Evaluate(v, nil, testNow)
	require.Len(t, alerts, 3)
	for _, a := range alerts {
		assert.Equal(t, domain.SeverityOverdue, a.Severity)
	}

	// Missing expiry dates are skipped silently, never reported.
	v.Odometer = 100
	assert.Empty(t, rs.Evaluate(v, nil, testNow))
}

func TestFixedKindOrder(t *testing.T) {
	rs := DefaultRuleset()
	v := domain.VehicleSnapshot{
		ID:       "unit-x",
		Odometer: 500000,
		DocumentExpiry: map[domain.AlertKind]time.Time{
			domain.KindRegistration: testNow.AddDate(0, 0, -1),
			domain.KindInspection:   testNow.AddDate(0, 0, 10),
		},
	}

	alerts := rs.Evaluate(v, nil, testNow)
	require.Len(t, alerts, 5)
	got := make([]domain.AlertKind, len(alerts))
	for i, a := range alerts {
		got[i] = a.Kind
	}
	assert.Equal(t, domain.KindOrder, got)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	rs := DefaultRuleset()
	v := quietVehicle()
	v.Odometer = 104800
	cleared := domain.ClearanceState{domain.KindTireService: testNow.AddDate(0, 0, -2)}

	first := rs.Evaluate(v, cleared, testNow)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rs.Evaluate(v, cleared, testNow))
	}
}

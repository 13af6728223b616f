package rules

import (
	"time"

	"github.com/st20medic/trucks/internal/config"
	"github.com/st20medic/trucks/internal/domain"
)

// FromConfig builds a Ruleset from configured thresholds.
func FromConfig(cfg *config.Config) Ruleset {
	rs := Ruleset{
		Mileage: map[domain.AlertKind]domain.MileageRule{
			domain.KindOilChange:    {Kind: domain.KindOilChange, IntervalMiles: cfg.OilIntervalMiles, WarningMiles: cfg.OilWarningMiles},
			domain.KindBrakeService: {Kind: domain.KindBrakeService, IntervalMiles: cfg.BrakeIntervalMiles, WarningMiles: cfg.BrakeWarningMiles},
			domain.KindTireService:  {Kind: domain.KindTireService, IntervalMiles: cfg.TireIntervalMiles, WarningMiles: cfg.TireWarningMiles},
		},
		Documents: map[domain.AlertKind]domain.DocumentRule{
			domain.KindRegistration: {Kind: domain.KindRegistration, WarningDays: cfg.DocumentWarningDays},
			domain.KindInspection:   {Kind: domain.KindInspection, WarningDays: cfg.DocumentWarningDays},
		},
		ClearanceWindow: time.Duration(cfg.ClearanceWindowDays) * 24 * time.Hour,
		Order:           domain.KindOrder,
	}
	return rs
}

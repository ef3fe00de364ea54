package services

import (
	"coldwatch/models"
)

// EvaluateReading maps one temperature sample plus the device's current
// settings and status to a verdict and the resulting status transition.
// The operating range is inclusive: values equal to TempMin or TempMax are
// in range, only strictly outside values violate.
//
// Transition rules:
//   - violation while not in alert  -> alert (changed)
//   - violation while already alert -> stays alert (unchanged)
//   - in range while in alert       -> active (changed)
//   - in range otherwise            -> unchanged
//
// Pure and deterministic; no side effects.
func EvaluateReading(temperature float64, settings models.Settings, current models.DeviceStatus) models.Evaluation {
	ev := models.Evaluation{
		Verdict:   models.VerdictInRange,
		NewStatus: current,
	}

	switch {
	case temperature > settings.TempMax:
		ev.Verdict = models.VerdictViolationHigh
		ev.Limit = settings.TempMax
		ev.Kind = models.BreachHigh
	case temperature < settings.TempMin:
		ev.Verdict = models.VerdictViolationLow
		ev.Limit = settings.TempMin
		ev.Kind = models.BreachLow
	}

	if ev.Verdict.IsViolation() {
		if current != models.DeviceAlert {
			ev.NewStatus = models.DeviceAlert
			ev.StatusChanged = true
		}
		return ev
	}

	if current == models.DeviceAlert {
		ev.NewStatus = models.DeviceActive
		ev.StatusChanged = true
	}

	return ev
}

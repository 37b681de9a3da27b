package predictor

import (
	"cyclecal/internal/model"
)

// Phase classifies today against a forecast. Checks run in order: the
// predicted period, the ovulation day, the fertile window, then before the
// fertile window (follicular) or anything else (luteal).
func Phase(f model.Forecast, today model.Date) model.Phase {
	switch {
	case !today.Before(f.NextCycleStart) && !today.After(f.NextCycleEnd):
		return model.PhasePeriod
	case today.Equal(f.Ovulation):
		return model.PhaseOvulation
	case !today.Before(f.FertileStart) && !today.After(f.FertileEnd):
		return model.PhaseFertile
	case today.Before(f.FertileStart):
		return model.PhaseFollicular
	default:
		return model.PhaseLuteal
	}
}

package strategy

import (
	"strings"
)

// Params expresses tunable knobs required by scorer constructors.
type Params struct {
	AnnualizationPeriods int
}

// Build returns a scorer implementation matching the configured mode.
func Build(mode string, params Params) Scorer {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "regression", "linreg", "log_regression":
		return NewRegressionMomentum(params.AnnualizationPeriods)
	case "roc", "rate_of_change":
		return NewRateOfChange()
	default:
		return NewRegressionMomentum(params.AnnualizationPeriods)
	}
}

// KnownMode reports whether Build recognises the mode without falling back.
func KnownMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "regression", "linreg", "log_regression", "roc", "rate_of_change":
		return true
	}
	return false
}

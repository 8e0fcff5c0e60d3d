package main

import (
	"time"

	"github.com/fincalc/engine/calc"
	"github.com/fincalc/engine/state"
	"github.com/fincalc/engine/validation"
)

// calculateResponse is the body of a successful POST /api/v1/calculate.
type calculateResponse struct {
	Results  calc.Results            `json:"results"`
	Warnings []validation.FieldError `json:"warnings"`
	Duration string                  `json:"duration"`
}

// stateResponse mirrors the calculation state snapshot.
type stateResponse struct {
	LastCalculated        *time.Time          `json:"lastCalculated"`
	DataChanged           bool                `json:"dataChanged"`
	CalculationInProgress bool                `json:"calculationInProgress"`
	Errors                []state.ErrorRecord `json:"errors"`
	ValidationResults     *validation.Result  `json:"validationResults"`
}

func newStateResponse(snap state.Snapshot) stateResponse {
	return stateResponse{
		LastCalculated:        snap.LastCalculated,
		DataChanged:           snap.DataChanged,
		CalculationInProgress: snap.CalculationInProgress,
		Errors:                snap.Errors,
		ValidationResults:     snap.ValidationResults,
	}
}

// historyResponse is the body of GET /api/v1/history.
type historyResponse struct {
	Entries []calc.HistoryEntry `json:"entries"`
	Limit   int                 `json:"limit"`
}

// errorResponse is the common error body. Validation failures additionally
// carry the full structured error and warning lists, never collapsed into a
// single opaque message.
type errorResponse struct {
	Error    string                  `json:"error"`
	Details  string                  `json:"details,omitempty"`
	Errors   []validation.FieldError `json:"errors,omitempty"`
	Warnings []validation.FieldError `json:"warnings,omitempty"`
}

package train

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
)

// Report is one progress report.
type Report struct {
	Epoch         int
	Epochs        int
	Step          int     // global step count at the time of the report
	TrainLoss     float64 // mean training loss since the previous report
	HasValidation bool
	ValLoss       float64
	ValAccuracy   float64
	Elapsed       time.Duration
}

// History collects what happened during Fit.
type History struct {
	Reports    []Report
	StepLosses []float32 // loss of every training step, in order
}

// Summary aggregates a history.
type Summary struct {
	Steps           int
	Reports         int
	FinalTrainLoss  float64
	MeanTrainLoss   float64
	BestValAccuracy float64
	MeanValAccuracy float64
	StdValAccuracy  float64
	MinValLoss      float64
}

// Summary computes aggregate statistics over the reports. Validation
// fields are zero when no report carried validation results.
func (h *History) Summary() (Summary, error) {
	s := Summary{Steps: len(h.StepLosses), Reports: len(h.Reports)}
	if len(h.Reports) == 0 {
		return s, nil
	}

	var trainLoss, valLoss, valAcc stats.Float64Data
	for _, r := range h.Reports {
		trainLoss = append(trainLoss, r.TrainLoss)
		if r.HasValidation {
			valLoss = append(valLoss, r.ValLoss)
			valAcc = append(valAcc, r.ValAccuracy)
		}
	}

	var err error
	s.FinalTrainLoss = trainLoss[len(trainLoss)-1]
	if s.MeanTrainLoss, err = stats.Mean(trainLoss); err != nil {
		return s, err
	}
	if len(valAcc) == 0 {
		return s, nil
	}
	if s.BestValAccuracy, err = stats.Max(valAcc); err != nil {
		return s, err
	}
	if s.MeanValAccuracy, err = stats.Mean(valAcc); err != nil {
		return s, err
	}
	if s.StdValAccuracy, err = stats.StandardDeviation(valAcc); err != nil {
		return s, err
	}
	if s.MinValLoss, err = stats.Min(valLoss); err != nil {
		return s, err
	}
	return s, nil
}

// Table renders the reports as a text table.
func (h *History) Table() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Epoch", "Step", "Train loss", "Val loss", "Val acc", "Elapsed"})
	for _, r := range h.Reports {
		valLoss, valAcc := "-", "-"
		if r.HasValidation {
			valLoss = fmt.Sprintf("%.4f", r.ValLoss)
			valAcc = fmt.Sprintf("%.2f%%", 100*r.ValAccuracy)
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("%d/%d", r.Epoch, r.Epochs),
			r.Step,
			fmt.Sprintf("%.4f", r.TrainLoss),
			valLoss,
			valAcc,
			r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	return t.Render()
}

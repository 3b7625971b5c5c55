package models

import "time"

// CommandOutcome is the result of one dispatched command on one host.
// Stdout and Error are never both set; both are empty when the command
// legitimately printed nothing.
type CommandOutcome struct {
	Host     string        `json:"host"`
	Stdout   string        `json:"stdout"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed reports whether the outcome carries an error.
func (o CommandOutcome) Failed() bool {
	return o.Error != ""
}

// DispatchRun summarises one batch sent through the dispatcher.
type DispatchRun struct {
	ID        string           `json:"id"`
	Command   string           `json:"command"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Outcomes  []CommandOutcome `json:"outcomes"`
}

// FailedCount returns how many outcomes in the run carry an error.
func (r DispatchRun) FailedCount() int {
	var n int
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

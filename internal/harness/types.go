package harness

// Step outcomes recorded in the trace.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Subject string `json:"subject"`
	Outcome string `json:"outcome"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

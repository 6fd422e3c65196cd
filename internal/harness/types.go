package harness

// TraceEvent is the outcome of one flow step.
type TraceEvent struct {
	Step   int            `json:"step"`
	Op     string         `json:"op"`
	Result map[string]any `json:"result"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// State is the final store snapshot: collection counts plus the
	// documents selected by the scenario's snapshot section.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends the outcome of a flow step.
func (r *Result) AddTrace(step int, op string, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Op: op, Result: result})
}

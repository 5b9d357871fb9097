package darkpool

// TransitionState describes how an anomaly key evolved between runs.
type TransitionState string

const (
	TransitionNew            TransitionState = "new"
	TransitionPersisted      TransitionState = "persisted"
	TransitionSeverityChange TransitionState = "severity_change"
	TransitionResolved       TransitionState = "resolved"
)

// Transition pairs an anomaly key with its state change since the prior
// run.
type Transition struct {
	Key              string          `json:"key"`
	Ticker           string          `json:"ticker"`
	MetricKey        string          `json:"metric_key"`
	State            TransitionState `json:"state"`
	PreviousSeverity Severity        `json:"previous_severity,omitempty"`
	CurrentSeverity  Severity        `json:"current_severity,omitempty"`
}

// ClassifyTransitions diffs the current anomaly set against the previous
// run's. Current anomalies come first in their run order, then resolved
// keys in previous-run order.
func ClassifyTransitions(current, previous []Anomaly) []Transition {
	prior := make(map[string]Anomaly, len(previous))
	for _, a := range previous {
		prior[a.Key()] = a
	}

	transitions := make([]Transition, 0, len(current)+len(previous))
	seen := make(map[string]bool, len(current))
	for _, a := range current {
		key := a.Key()
		seen[key] = true
		t := Transition{
			Key:             key,
			Ticker:          a.Ticker,
			MetricKey:       a.MetricKey,
			CurrentSeverity: a.Severity,
		}
		if prev, ok := prior[key]; ok {
			t.PreviousSeverity = prev.Severity
			if prev.Severity == a.Severity {
				t.State = TransitionPersisted
			} else {
				t.State = TransitionSeverityChange
			}
		} else {
			t.State = TransitionNew
		}
		transitions = append(transitions, t)
	}

	for _, a := range previous {
		key := a.Key()
		if seen[key] {
			continue
		}
		transitions = append(transitions, Transition{
			Key:              key,
			Ticker:           a.Ticker,
			MetricKey:        a.MetricKey,
			State:            TransitionResolved,
			PreviousSeverity: a.Severity,
		})
	}
	return transitions
}

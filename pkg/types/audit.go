package types

// DecisionEvent is delivered to the injected audit logger after each check
// when auditing is enabled. It carries only the request/response shape
// the core owns; audit transport, storage, and retention belong to the
// caller.
type DecisionEvent struct {
	Request  *CheckRequest `json:"request"`
	Response struct {
		Results           map[string]ActionResult `json:"results"`
		DurationMs        float64                 `json:"durationMs"`
		PoliciesEvaluated []string                `json:"policiesEvaluated"`
	} `json:"response"`
}

// AuditLogger receives a DecisionEvent after every check. Implementations
// must not block the engine; slow sinks should buffer or drop internally.
type AuditLogger interface {
	LogDecision(event *DecisionEvent)
}

// AuditLoggerFunc adapts a plain function to the AuditLogger interface.
type AuditLoggerFunc func(event *DecisionEvent)

// LogDecision implements AuditLogger.
func (f AuditLoggerFunc) LogDecision(event *DecisionEvent) {
	f(event)
}

package engine

// Severity grades how dangerous a guardrail finding is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// GuardrailType names the guardrail that refused a request.
type GuardrailType string

const (
	TypePromptInjection   GuardrailType = "prompt_injection"
	TypeRateLimit         GuardrailType = "rate_limit"
	TypeLengthValidation  GuardrailType = "length_validation"
	TypeSuspiciousPattern GuardrailType = "suspicious_pattern"
	TypeScopeEnforcement  GuardrailType = "scope_enforcement"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn. Only user-authored messages are untrusted.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GuardrailDetail explains why a guardrail refused a request. It is a pure
// value object rendered verbatim by the site's guardrail panel, so it only
// ever carries pre-written text and small counters.
type GuardrailDetail struct {
	Type           GuardrailType  `json:"type"`
	Severity       Severity       `json:"severity"`
	Category       string         `json:"category"`
	Explanation    string         `json:"explanation"`
	Detected       string         `json:"detected"`
	Implementation string         `json:"implementation"`
	Context        map[string]any `json:"context,omitempty"`
}

// Verdict is the outcome of classifying one user message.
//
// An invalid verdict always has Reason and Detail set. A valid verdict always
// carries SanitizedInput, which is what gets forwarded downstream.
type Verdict struct {
	IsValid        bool             `json:"isValid"`
	Reason         string           `json:"reason,omitempty"`
	Severity       Severity         `json:"severity,omitempty"`
	SanitizedInput string           `json:"sanitizedInput,omitempty"`
	Detail         *GuardrailDetail `json:"guardrailDetails,omitempty"`
}

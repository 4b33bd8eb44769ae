package contract

import "fmt"

// ValidationError reports a malformed request, rejected before any state
// mutation.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return "validation: " + e.Message
}

// NotFoundError reports an unknown contract, party, signature or payment.
type NotFoundError struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// TransitionError is a structured error for transitions not permitted from
// the current status. Contract state is unchanged when it is returned.
type TransitionError struct {
	Code    string `json:"code"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string { return e.Message }

// IntegrityError reports a contract-hash mismatch on an integrity-sensitive
// read. It must never be silently ignored: payment release and completion
// refuse to proceed when it is returned.
type IntegrityError struct {
	ContractID string `json:"contractId"`
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("contract %s failed integrity check: stored hash does not match content", e.ContractID)
}

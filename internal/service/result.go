package service

// NextTransition tells the caller which client-side UI state follows a
// verification operation. It is part of the contract: callers must not
// infer next-state from HTTP status codes alone.
type NextTransition string

const (
	TransitionEmailInput   NextTransition = "EMAIL_INPUT"
	TransitionCodeInput    NextTransition = "CODE_INPUT"
	TransitionChatReady    NextTransition = "CHAT_READY"
	TransitionSessionReset NextTransition = "SESSION_RESET"
	TransitionSessionError NextTransition = "SESSION_ERROR"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the discriminated outcome of a verification operation.
// Remaining is meaningful only for code mismatches; ChatToken only for
// verified sessions.
type Result struct {
	Status         Status         `json:"status"`
	Code           string         `json:"code,omitempty"`
	Message        string         `json:"message,omitempty"`
	Remaining      *int           `json:"remaining_attempts,omitempty"`
	NextTransition NextTransition `json:"next"`
	ChatToken      string         `json:"chat_token,omitempty"`
}

func successResult(next NextTransition, message string) Result {
	return Result{Status: StatusSuccess, Message: message, NextTransition: next}
}

func errorResult(code, message string, next NextTransition) Result {
	return Result{Status: StatusError, Code: code, Message: message, NextTransition: next}
}

package internal

import "errors"

// ErrorKind classifies rejected mutations so the transport layer can map
// them to status codes without string matching.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindState
	KindConcurrency
	KindResourceExhausted
	KindNotFound
	KindInternal
)

type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

var (
	ErrAlreadyCheckedIn = NewDomainError(KindState, "already_checked_in",
		"a check-in already exists for today")
	ErrDuplicateCheckIn = NewDomainError(KindState, "duplicate_checkin",
		"a check-in record already exists for this day")
	ErrSessionActive = NewDomainError(KindState, "session_active",
		"finish or cancel your current check-in first")
	ErrNoActiveSession = NewDomainError(KindState, "no_active_session",
		"no check-in session in progress")
	ErrSessionIncomplete = NewDomainError(KindState, "session_incomplete",
		"not all items have been answered yet")
	ErrNothingToUndo = NewDomainError(KindValidation, "nothing_to_undo",
		"no answered item to undo")
	ErrUnexpectedItem = NewDomainError(KindValidation, "unexpected_item",
		"answer does not match the item being prompted")
	ErrCorrectionWindowExpired = NewDomainError(KindState, "correction_window_expired",
		"the correction window for this check-in has closed")
	ErrCorrectionAlreadyUsed = NewDomainError(KindState, "correction_already_used",
		"this check-in has already been corrected once")
	ErrNoShieldsAvailable = NewDomainError(KindResourceExhausted, "no_shields_available",
		"no streak shields left this period")
	ErrShieldNotNeeded = NewDomainError(KindState, "shield_not_needed",
		"streak is not at risk, shield not consumed")
	ErrConcurrentModification = NewDomainError(KindConcurrency, "concurrent_modification",
		"state changed concurrently, retry")
	ErrUserStateNotFound = NewDomainError(KindNotFound, "user_state_not_found",
		"no state exists for this user")
)

// KindOf returns the kind of err when it wraps a DomainError, else KindInternal.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AppError is the wire-level error payload used by the response envelope.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

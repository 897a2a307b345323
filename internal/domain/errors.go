package domain

import "errors"

var (
	// ErrUnauthenticated indicates no resolvable user identity. Fatal to
	// session initialization; surfaced to the caller.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrContentNotFound indicates a module has no content units.
	ErrContentNotFound = errors.New("content not found")

	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrChatEntryNotFound indicates the requested chat entry does not exist.
	ErrChatEntryNotFound = errors.New("chat entry not found")

	// ErrHintSequence indicates a hint level was requested out of order.
	ErrHintSequence = errors.New("hint level out of sequence")

	// ErrTimerNotFound indicates the timed session does not exist.
	ErrTimerNotFound = errors.New("timed session not found")

	// ErrGateway indicates the AI gateway call failed. Recovered locally:
	// validation treats it as not-correct and substitutes apology text.
	ErrGateway = errors.New("ai gateway error")
)

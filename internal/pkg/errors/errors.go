package errors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid")
	ErrConflict         = errors.New("conflict")
	ErrTooMany          = errors.New("too many requests")
	ErrInternal         = errors.New("internal")
	ErrResearchRunning  = errors.New("research already running")
	ErrResearchNotReady = errors.New("research not completed")
	ErrEmptyIndex       = errors.New("namespace has no indexed chunks")
	ErrNoPagesIngested  = errors.New("no pages ingested")
	ErrAIUnavailable    = errors.New("ai provider unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

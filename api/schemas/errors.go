package schemas

import "errors"

var (
	// ErrNoJob means no job matched the claim filter. It is not a failure.
	ErrNoJob = errors.New("no eligible job")
	// ErrLostRace means another executor changed the job between select and update.
	ErrLostRace = errors.New("job claimed concurrently")
	// ErrAlreadyFinalized is returned when a job already holds the requested terminal status.
	ErrAlreadyFinalized = errors.New("job already finalized")
	// ErrInvalidTransition is returned for any status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrProfileNotFound   = errors.New("sender profile not found")
	ErrJobNotFound       = errors.New("job not found")

	ErrElementNotFound = errors.New("element not found")
	ErrNotCheckable    = errors.New("element is not a checkbox or radio")
	// ErrNavigation marks a page load that failed or ended on a browser error page.
	ErrNavigation = errors.New("navigation failed")
)

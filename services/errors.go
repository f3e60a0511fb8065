package services

import "errors"

// Shared sentinel errors for the lifecycle services, mapped onto HTTP status
// codes in the handlers package.
var (
	// Not found
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrTeamNotFound       = errors.New("team not found")

	// Validation and business rules (user errors, never retried)
	ErrScoreShapeInvalid      = errors.New("score grid does not match the tournament's round and team counts")
	ErrScoreOutOfRange        = errors.New("score is outside the allowed range for this tournament")
	ErrMatchWindowClosed      = errors.New("match can only be reported between its start time and deadline")
	ErrTeamNotInMatch         = errors.New("team is not a participant of this match")
	ErrTeamNotSeeded          = errors.New("team has not been assigned a seed yet")
	ErrMatchNotSubmitted      = errors.New("match has no submitted result to act on")
	ErrMatchAlreadyCompleted  = errors.New("match result has already been finalized")
	ErrMatchAlreadySubmitted  = errors.New("match already has a submitted result")
	ErrSubmitterCannotConfirm = errors.New("the submitting team cannot confirm its own result")
	ErrAlreadyConfirmed       = errors.New("team has already confirmed this result")
	ErrAlreadyForfeited       = errors.New("team has already forfeited this match")
	ErrQuorumNotReached       = errors.New("not enough teams have confirmed this result")

	// Authorization
	ErrForceRequiresAdmin = errors.New("forcing a lifecycle transition requires the admin role")
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")

	// Soft conflict: a concurrent writer got there first. Callers should
	// refetch the match and retry or surface the conflict.
	ErrMatchConflict = errors.New("match was modified concurrently, refetch and retry")

	// Internal consistency failures. These indicate a logic bug or an
	// interleaving the version guard should have prevented; they are logged
	// and surfaced as server errors.
	ErrOutcomeInconsistent = errors.New("computed outcome does not match resolved teams")
	ErrMatchStateCorrupted = errors.New("terminal match update matched no rows")
	ErrRecordArchiveFailed = errors.New("failed to export audit records")
)

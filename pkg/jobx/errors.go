package jobx

import "github.com/Abraxas-365/facilitydir/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound    = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrEnqueueFailed  = jobxErrors.Register("ENQUEUE_FAILED", errx.TypeExternal, 500, "Failed to enqueue job")
	ErrInvalidJob     = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrAlreadyRunning = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
	ErrHandlerPanic   = jobxErrors.Register("HANDLER_PANIC", errx.TypeInternal, 500, "Job handler panicked")
)

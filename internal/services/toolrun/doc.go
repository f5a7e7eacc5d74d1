// Package toolrun executes external tool binaries on behalf of stage adapters.
//
// Every invocation runs in its own process group under a context deadline, and
// failures are classified with the services error markers: a missing binary is
// ErrToolNotFound, an expired deadline is ErrToolTimeout, exit status 75 or
// rate-limit wording on stderr is ErrRateLimited, and any other non-zero exit
// is ErrToolExit. Cancelling the context kills the whole process group so no
// orphaned tool keeps writing into a run directory.
package toolrun

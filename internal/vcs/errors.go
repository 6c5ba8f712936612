package vcs

import "errors"

// Common errors returned by VCS operations.
//
// These errors can be checked with errors.Is for proper handling:
//
//	if errors.Is(err, vcs.ErrConflicts) {
//	    // invoke the conflict resolver
//	}
var (
	// ErrNotARepo is returned when the operation requires a repository
	// but the path is not inside one.
	ErrNotARepo = errors.New("not a version-controlled repository")

	// ErrBinaryNotFound is returned when the VCS binary is not installed
	// or not in PATH.
	ErrBinaryNotFound = errors.New("VCS binary not available")

	// ErrNoRemote is returned when an operation requires a remote but
	// none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrConflicts is returned when a merge leaves unresolved conflicts
	// in the index.
	ErrConflicts = errors.New("unresolved merge conflicts")

	// ErrNoMergeInProgress is returned when a merge conclusion is
	// requested but no merge is pending.
	ErrNoMergeInProgress = errors.New("no merge in progress")

	// ErrPushRejected is returned when a push is rejected by the remote,
	// typically a non-fast-forward update.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrAuth is returned when the remote refuses the offered
	// credentials.
	ErrAuth = errors.New("remote authentication failed")

	// ErrNetwork is returned for transient network failures: unreachable
	// host, dropped connection, remote hung up.
	ErrNetwork = errors.New("network failure")

	// ErrTimeout is returned when a VCS operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrPathAbsent is returned when a requested path has no content at
	// the given ref or merge stage.
	ErrPathAbsent = errors.New("path absent at ref")

	// ErrRemoteRefMissing is returned when the remote has no ref to
	// compare against, e.g. a freshly created empty remote.
	ErrRemoteRefMissing = errors.New("remote ref not found")
)

// IsRetryable returns true if the error is likely to succeed on retry.
// Transient network failures and timeouts qualify. Authentication
// failures never do, and neither does a rejected push: a non-fast-forward
// push keeps failing until the remote is fetched and merged again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTimeout)
}

// IsAuthFailure returns true if the error indicates rejected credentials.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuth)
}

package email

import "errors"

// Error kinds the engine distinguishes. Callers branch with errors.Is;
// everything else is wrapped context around one of these or a plain failure.
var (
	// ErrAuthFailed means the server rejected the account's credential. It
	// is never masked by fallbacks because it requires user action.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrConnFailed means a session could not be established or maintained.
	ErrConnFailed = errors.New("connection failed")

	// ErrFolderUnavailable means the target folder does not exist and could
	// not be created.
	ErrFolderUnavailable = errors.New("folder unavailable")

	// ErrNotFound means the requested message identifier is absent from the
	// folder.
	ErrNotFound = errors.New("message not found")

	// ErrSendFailed means SMTP transmission did not complete. Nothing is
	// persisted when this is returned.
	ErrSendFailed = errors.New("send failed")
)

package tryon

import "errors"

var (
	// ErrDriverNotRegistered means an explicitly requested driver name has
	// no registered factory. The implicit default path never returns this.
	ErrDriverNotRegistered = errors.New("try-on driver not registered")
	// ErrDriverConfig means the driver exists but cannot be constructed,
	// usually because credentials are missing.
	ErrDriverConfig = errors.New("try-on driver misconfigured")

	ErrUploadNotReady     = errors.New("upload is not approved yet")
	ErrUploadRejected     = errors.New("upload was rejected by moderation")
	ErrGarmentUnavailable = errors.New("garment not found or unavailable")

	ErrUnknownWebhookProvider = errors.New("unknown webhook provider")
	ErrBadWebhookPayload      = errors.New("malformed webhook payload")
)

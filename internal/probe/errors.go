package probe

import "errors"

// Capability-check rejection reasons reported by the server
var (
	ErrSiteMaintenance  = errors.New("site is in maintenance mode")
	ErrServicesDisabled = errors.New("web services are disabled on this site")
	ErrMobileDisabled   = errors.New("mobile services are disabled on this site")
)

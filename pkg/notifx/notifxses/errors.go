package notifxses

import "github.com/Abraxas-365/facilitydir/pkg/errx"

var sesErrors = errx.NewRegistry("NOTIFX_SES")

var (
	ErrSendFailed = sesErrors.Register("SEND_FAILED", errx.TypeExternal, 502, "SES send email failed")
	ErrConfig     = sesErrors.Register("CONFIG", errx.TypeInternal, 500, "Failed to load AWS configuration")
)

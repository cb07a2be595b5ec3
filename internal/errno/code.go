package errno

/*
 * errno doubles as the process exit status. 1 is reserved for errors that
 * carry no code.
 */

var (
	// OK
	ErrOK = NewError(0, "OK")

	ErrUnknown = NewError(1, "unexpected failure")

	// invocation
	ErrUsage = NewError(2, "usage error")

	// container open and format registry
	ErrInit = NewError(3, "initialization failed")

	// packet source
	ErrRead = NewError(4, "stream read failed")

	// report output
	ErrOutput = NewError(5, "report output failed")
)

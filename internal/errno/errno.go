package errno

import (
	"encoding/json"
)

var _ Error = (*err)(nil)

type Error interface {
	error

	// process exit status for this error
	Code() int

	// attach the underlying failure, returns a copy
	WithCause(cause error) Error

	// attach payload data, returns a copy
	WithData(data interface{}) Error

	// attach the run ID, returns a copy
	WithID(id string) Error

	// Cause returns the attached failure, compatible with errors.Cause
	Cause() error

	// JSON rendering
	String() string

	i() // keeps implementations inside this package
}

type err struct {
	ErrNo  int         `json:"errno"`          // error code, also the exit status
	ErrMsg string      `json:"errmsg"`         // description
	Data   interface{} `json:"data,omitempty"` // payload on success
	ID     string      `json:"id,omitempty"`   // run ID for log correlation
	Detail string      `json:"detail,omitempty"`

	cause error
}

func NewError(errno int, errmsg string) Error {
	return &err{
		ErrNo:  errno,
		ErrMsg: errmsg,
	}
}

func (e *err) clone() *err {
	c := *e
	return &c
}

func (e *err) Code() int {
	return e.ErrNo
}

func (e *err) WithCause(cause error) Error {
	c := e.clone()
	c.cause = cause
	if cause != nil {
		c.Detail = cause.Error()
	}
	return c
}

func (e *err) WithData(data interface{}) Error {
	c := e.clone()
	c.Data = data
	return c
}

func (e *err) WithID(id string) Error {
	c := e.clone()
	c.ID = id
	return c
}

func (e *err) Cause() error {
	return e.cause
}

func (e *err) Error() string {
	if e.cause == nil {
		return e.ErrMsg
	}
	return e.ErrMsg + ": " + e.cause.Error()
}

func (e *err) String() string {
	raw, _ := json.Marshal(e)
	return string(raw)
}

func (e *err) i() {}

type causer interface {
	Cause() error
}

// As returns the outermost Error in err's cause chain.
func As(e error) (Error, bool) {
	for e != nil {
		if coded, ok := e.(Error); ok {
			return coded, true
		}
		c, ok := e.(causer)
		if !ok {
			break
		}
		e = c.Cause()
	}
	return nil, false
}

// ExitCode maps err to a process exit status: 0 for nil, the errno code
// for coded errors, 1 otherwise.
func ExitCode(e error) int {
	if e == nil {
		return ErrOK.Code()
	}
	if coded, ok := As(e); ok {
		return coded.Code()
	}
	return ErrUnknown.Code()
}

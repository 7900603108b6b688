package abi

import "fmt"

// Well known function names shared by the host and the guest image.
const (
	// FuncInitializeInterpreter boots the guest interpreter runtime.
	FuncInitializeInterpreter = "InitializeInterpreter"
	// FuncExecuteScript runs a script in the live interpreter.
	FuncExecuteScript = "ExecuteScript"
	// FuncInterpreterStatus reports if the interpreter runtime is live.
	FuncInterpreterStatus = "InterpreterStatus"
	// FuncHostPrint is the host function the guest relays printed text to.
	FuncHostPrint = "HostPrint"
)

// ErrorCode classifies an error raised while handling a call.
type ErrorCode uint8

const (
	ErrorCodeGuestError ErrorCode = iota
	ErrorCodeFunctionNotFound
	ErrorCodeParameterTypeMismatch
	ErrorCodeIncorrectReturnType
	ErrorCodeAlreadyInitialized
	ErrorCodeHostFunctionError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeGuestError:
		return "GuestError"
	case ErrorCodeFunctionNotFound:
		return "FunctionNotFound"
	case ErrorCodeParameterTypeMismatch:
		return "ParameterTypeMismatch"
	case ErrorCodeIncorrectReturnType:
		return "IncorrectReturnType"
	case ErrorCodeAlreadyInitialized:
		return "AlreadyInitialized"
	case ErrorCodeHostFunctionError:
		return "HostFunctionError"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint8(c))
	}
}

// GuestError is an error reported across the boundary.
type GuestError struct {
	Code    ErrorCode `cbor:"1,keyasint"`
	Message string    `cbor:"2,keyasint,omitempty"`
}

func (e *GuestError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewGuestError returns a new boundary error.
func NewGuestError(code ErrorCode, format string, args ...any) *GuestError {
	return &GuestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FunctionCall is a request to run a function on the other side of the boundary.
type FunctionCall struct {
	Name   string  `cbor:"1,keyasint"`
	Params []Value `cbor:"2,keyasint,omitempty"`
	Return Type    `cbor:"3,keyasint"`
}

// FunctionResult is the outcome of a FunctionCall, either a value or an error.
type FunctionResult struct {
	Value Value       `cbor:"1,keyasint"`
	Error *GuestError `cbor:"2,keyasint,omitempty"`
}

// ParamTypes returns the types of the call parameters.
func (c FunctionCall) ParamTypes() []Type {
	ts := make([]Type, 0, len(c.Params))
	for _, p := range c.Params {
		ts = append(ts, p.Type)
	}
	return ts
}

func (c FunctionCall) validate() error {
	for i, p := range c.Params {
		if err := p.validate(); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return nil
}

func (r FunctionResult) validate() error {
	return r.Value.validate()
}

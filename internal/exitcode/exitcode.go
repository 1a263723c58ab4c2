package exitcode

import "fmt"

// Exit codes for tutor commands
const (
	Success   = 0
	Error     = 1
	Usage     = 2
	NotFound  = 3
	Cancelled = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Convenience constructors
func Usagef(format string, args ...any) ExitError {
	return ExitError{Code: Usage, Message: fmt.Sprintf(format, args...)}
}
func NotFoundf(format string, args ...any) ExitError {
	return ExitError{Code: NotFound, Message: fmt.Sprintf(format, args...)}
}
func Cancel() ExitError { return ExitError{Code: Cancelled, Message: "cancelled"} }

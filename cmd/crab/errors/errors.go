package errors

import (
	"context"
	"errors"
)

var (
	// ErrUsage is for bad flags or arguments.
	ErrUsage = errors.New("usage error")

	// ErrUnknownCommand is for a command name which is not registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrConfig is for a configuration which does not pass validation.
	ErrConfig = errors.New("invalid configuration")

	ErrConfigMissing    = errors.New("configuration file not found")
	ErrInputFileMissing = errors.New("input file not found")

	// ErrTaskNotFound is for a task directory which does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCacheMissing is for a task directory without its cache record.
	ErrCacheMissing = errors.New("task cache missing")

	// ErrCommunication is for transport failures and non-2xx responses.
	ErrCommunication = errors.New("communication error")

	// ErrServer is for a response whose result is not "ok".
	ErrServer = errors.New("server refused the request")

	ErrCredential     = errors.New("credential error")
	ErrNotImplemented = errors.New("not implemented")
)

// Kind categorizes a failure.
type Kind string

const (
	KindNone             Kind = ""
	KindFailure          Kind = "Failure"
	KindUsage            Kind = "UsageError"
	KindUnknownCommand   Kind = "UnknownCommand"
	KindConfig           Kind = "ConfigurationError"
	KindConfigMissing    Kind = "ConfigurationMissing"
	KindInputFileMissing Kind = "InputFileMissing"
	KindTaskNotFound     Kind = "TaskNotFound"
	KindCacheMissing     Kind = "CacheMissing"
	KindCommunication    Kind = "CommunicationError"
	KindServer           Kind = "ServerError"
	KindCredential       Kind = "CredentialError"
	KindNotImplemented   Kind = "NotImplemented"
	KindInterrupted      Kind = "Interrupted"
)

const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitUsage            = 2
	ExitUnknownCommand   = 3
	ExitCommunication    = 10
	ExitServer           = 11
	ExitConfig           = 3000
	ExitTaskNotFound     = 3001
	ExitCacheMissing     = 3002
	ExitConfigMissing    = 3003
	ExitInputFileMissing = 3004
	ExitNotImplemented   = 3005
	ExitCredential       = 4000

	// ExitInterrupted is 128 + SIGINT, as shells report it.
	ExitInterrupted = 130
)

// LogHintThreshold is the lowest exit code which does not need a pointer to
// the log file. Those failures are explained on the console entirely.
const LogHintThreshold = 3000

type category struct {
	sentinel error
	kind     Kind
	code     int
}

// more specific first. ErrCredential wins over anything it is wrapped with.
var categories = []category{
	{ErrCredential, KindCredential, ExitCredential},
	{ErrUnknownCommand, KindUnknownCommand, ExitUnknownCommand},
	{ErrUsage, KindUsage, ExitUsage},
	{ErrConfigMissing, KindConfigMissing, ExitConfigMissing},
	{ErrConfig, KindConfig, ExitConfig},
	{ErrInputFileMissing, KindInputFileMissing, ExitInputFileMissing},
	{ErrTaskNotFound, KindTaskNotFound, ExitTaskNotFound},
	{ErrCacheMissing, KindCacheMissing, ExitCacheMissing},
	{ErrNotImplemented, KindNotImplemented, ExitNotImplemented},
	{ErrServer, KindServer, ExitServer},
	{ErrCommunication, KindCommunication, ExitCommunication},
}

// KindOf tells the category of err.
//
// nil is KindNone, and an error out of any category is KindFailure.
// Cancellation wins over the category of the operation it stopped.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if IsInterrupted(err) {
		return KindInterrupted
	}
	for _, c := range categories {
		if errors.Is(err, c.sentinel) {
			return c.kind
		}
	}
	return KindFailure
}

// ExitCode is the process exit code for err. nil is ExitOK.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsInterrupted(err) {
		return ExitInterrupted
	}
	for _, c := range categories {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return ExitFailure
}

// ExitCodeOf is the exit code for a failure of the kind.
func ExitCodeOf(kind Kind) int {
	switch kind {
	case KindNone:
		return ExitOK
	case KindInterrupted:
		return ExitInterrupted
	}
	for _, c := range categories {
		if c.kind == kind {
			return c.code
		}
	}
	return ExitFailure
}

// WantsLogHint tells whether a failure with the code should be followed by
// a pointer to the log file.
func WantsLogHint(code int) bool {
	return code != ExitOK && code != ExitInterrupted && code < LogHintThreshold
}

// WantsVerbose tells whether the cause chain of err should be shown even
// without --debug.
func WantsVerbose(err error) bool {
	return errors.Is(err, ErrCredential)
}

// IsInterrupted tells err is caused by cancellation of the process.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

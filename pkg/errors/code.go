package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Interview session errors
// 12000-12999: Problem catalog errors
// 13000-13999: Sandbox execution errors
// 14000-14999: Decision provider errors
// 15000-15999: Event log errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache & storage errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202
	StorageError   ErrorCode = 10210

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Interview Session Errors (11000-11999) ==========

	SessionNotFound       ErrorCode = 11000
	SessionCreateFailed   ErrorCode = 11001
	InterviewCompleted    ErrorCode = 11100
	InterviewNotCompleted ErrorCode = 11101
	InterviewAlreadyFinal ErrorCode = 11102
	SnapshotEncodeFailed  ErrorCode = 11200
	SnapshotDecodeFailed  ErrorCode = 11201

	// ========== Problem Catalog Errors (12000-12999) ==========

	ProblemNotFound   ErrorCode = 12000
	CatalogLoadFailed ErrorCode = 12001
	TestCaseInvalid   ErrorCode = 12100
	ProblemHasNoCases ErrorCode = 12101

	// ========== Sandbox Errors (13000-13999) ==========

	SandboxUnavailable ErrorCode = 13000
	SandboxQueueFull   ErrorCode = 13001
	SandboxSystemError ErrorCode = 13002
	CodeTooLarge       ErrorCode = 13003

	// ========== Decision Provider Errors (14000-14999) ==========

	DecisionProviderFailed ErrorCode = 14000
	DecisionParseFailed    ErrorCode = 14001

	// ========== Event Log Errors (15000-15999) ==========

	EventPublishFailed ErrorCode = 15000
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",
	StorageError:   "Object storage operation failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	SessionNotFound:       "Interview session not found",
	SessionCreateFailed:   "Failed to create interview session",
	InterviewCompleted:    "Interview already completed",
	InterviewNotCompleted: "Interview not yet completed",
	InterviewAlreadyFinal: "Interview result is already final",
	SnapshotEncodeFailed:  "Failed to encode session snapshot",
	SnapshotDecodeFailed:  "Failed to decode session snapshot",

	ProblemNotFound:   "Problem not found",
	CatalogLoadFailed: "Failed to load problem catalog",
	TestCaseInvalid:   "Invalid test case format",
	ProblemHasNoCases: "Problem has no test cases",

	SandboxUnavailable: "Code sandbox is unavailable",
	SandboxQueueFull:   "Code sandbox is busy, please try again later",
	SandboxSystemError: "Code sandbox system error",
	CodeTooLarge:       "Code is too large",

	DecisionProviderFailed: "Decision provider failed",
	DecisionParseFailed:    "Decision provider returned an unparseable response",

	EventPublishFailed: "Failed to publish event",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == SessionNotFound, c == ProblemNotFound:
		return 404
	case c == InterviewCompleted, c == InterviewNotCompleted, c == InterviewAlreadyFinal:
		return 409
	case c == TooManyRequests, c == SandboxQueueFull:
		return 429
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == TestCaseInvalid:
		return 400
	default:
		return 500
	}
}

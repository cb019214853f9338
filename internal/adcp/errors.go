package adcp

import "fmt"

// ErrorKind classifies transport-level failures. A transport failure aborts
// the skill with no payload. Domain problems, such as a creative that fails
// validation or a package referencing an unknown product, are not transport
// failures; they ride in the errors array of an otherwise well-formed
// response.
type ErrorKind string

const (
	KindMissingAuth       ErrorKind = "missing_authentication"
	KindInvalidAuth       ErrorKind = "invalid_auth_token"
	KindInvalidParams     ErrorKind = "invalid_params"
	KindMethodNotFound    ErrorKind = "method_not_found"
	KindNotFound          ErrorKind = "not_found"
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindDatabaseUnhealthy ErrorKind = "database_unhealthy"
	KindUnavailable       ErrorKind = "service_unavailable"
	KindInternal          ErrorKind = "internal_error"
)

// TransportError is returned by skills and the dispatcher when the
// invocation itself fails. The A2A layer maps Kind onto the JSON-RPC code
// space; the MCP layer surfaces it as a tool error.
type TransportError struct {
	Kind    ErrorKind
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func MissingAuth() *TransportError {
	return &TransportError{Kind: KindMissingAuth, Message: "authentication required: provide a bearer token via the Authorization header"}
}

func InvalidAuth(msg string) *TransportError {
	return &TransportError{Kind: KindInvalidAuth, Message: msg}
}

func InvalidParamsf(format string, args ...any) *TransportError {
	return &TransportError{Kind: KindInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func MethodNotFoundf(format string, args ...any) *TransportError {
	return &TransportError{Kind: KindMethodNotFound, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *TransportError {
	return &TransportError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func PermissionDenied(msg string) *TransportError {
	return &TransportError{Kind: KindPermissionDenied, Message: msg}
}

// DatabaseUnhealthy is the fail-fast error surfaced while the database
// circuit breaker is open.
func DatabaseUnhealthy() *TransportError {
	return &TransportError{Kind: KindDatabaseUnhealthy, Message: "database temporarily unavailable, retry shortly"}
}

func Unavailable(msg string) *TransportError {
	return &TransportError{Kind: KindUnavailable, Message: msg}
}

func Internalf(format string, args ...any) *TransportError {
	return &TransportError{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// JSON-RPC error codes. The standard codes follow JSON-RPC 2.0; the -32000
// range follows the A2A protocol.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeTaskNotFound   = -32000
	CodeSkillNotFound  = -32001
	CodeNotCancelable  = -32002
	CodeUnauthorized   = -32003
)

// JSONRPCCode maps the error kind onto the JSON-RPC code space.
func (e *TransportError) JSONRPCCode() int {
	switch e.Kind {
	case KindMissingAuth, KindInvalidAuth, KindPermissionDenied:
		return CodeUnauthorized
	case KindInvalidParams:
		return CodeInvalidParams
	case KindMethodNotFound:
		return CodeSkillNotFound
	case KindNotFound:
		return CodeTaskNotFound
	default:
		return CodeInternal
	}
}

// Error is a domain-level problem reported inside a response payload.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func Errorf(code, format string, args ...any) Error {
	return Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Domain error codes used in response errors arrays.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeUnknownProduct  = "unknown_product"
	ErrCodeUnknownPricing  = "unknown_pricing_option"
	ErrCodeUnknownMediaBuy = "unknown_media_buy"
	ErrCodeUnknownPackage  = "unknown_package"
	ErrCodeDuplicateRef    = "duplicate_buyer_ref"
	ErrCodeCreativeInvalid = "creative_invalid"
	ErrCodeAssignment      = "assignment_failed"
	ErrCodeAdapter         = "adapter_error"
	ErrCodePolicy          = "policy_violation"
)

package tool

import "errors"

// Failure kinds exposed at the transport boundary.
const (
	KindInvalidArguments = "invalid_arguments"
	KindToolNotFound     = "tool_not_found"
	KindInvalidInput     = "invalid_input"
	KindUpstreamContract = "upstream_contract_violation"
	KindRejected         = "rejected"
	KindUnavailable      = "unavailable"
	KindInternal         = "internal"
)

// Failure is the structured error payload written to transports. It carries
// no wrapped causes so stack traces and upstream internals never leave the
// process.
type Failure struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// FailureFrom maps an invocation error onto its transport representation.
func FailureFrom(err error) Failure {
	if err == nil {
		return Failure{}
	}

	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return Failure{Kind: KindInvalidArguments, Message: argErr.Error()}
	}

	if errors.Is(err, ErrNotFound) {
		return Failure{Kind: KindToolNotFound, Message: err.Error()}
	}

	if adapterErr, ok := adapterErrorFrom(err); ok {
		failure := Failure{Message: adapterErr.Message}
		switch adapterErr.Code {
		case CodeInvalidInput:
			failure.Kind = KindInvalidInput
		case CodeUpstreamContract:
			failure.Kind = KindUpstreamContract
		case CodeRejected:
			failure.Kind = KindRejected
		case CodeUnavailable:
			failure.Kind = KindUnavailable
			failure.Retryable = true
			failure.Details = map[string]any{"attempts": adapterErr.Attempts}
		default:
			failure.Kind = KindInternal
			failure.Retryable = adapterErr.Retryable
		}
		if adapterErr.Status != 0 {
			if failure.Details == nil {
				failure.Details = map[string]any{}
			}
			failure.Details["status"] = adapterErr.Status
		}
		return failure
	}

	return Failure{Kind: KindInternal, Message: err.Error()}
}

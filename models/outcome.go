package models

// OutcomeKind tags the result of fetching one symbol from the quote provider.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeEmpty
	OutcomeRateLimited
	OutcomeAPIError
	OutcomeTransportFailure
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAPIError:
		return "api_error"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may change the result.
// Empty and malformed responses are final.
func (k OutcomeKind) Retryable() bool {
	switch k {
	case OutcomeRateLimited, OutcomeAPIError, OutcomeTransportFailure:
		return true
	default:
		return false
	}
}

// FetchOutcome is the classified provider response for one symbol.
// Payload is only set for OutcomeSuccess; Message carries the provider or
// transport reason for every other kind.
type FetchOutcome struct {
	Kind     OutcomeKind
	Payload  RawQuotePayload
	Message  string
	Attempts int
}

func Success(payload RawQuotePayload) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSuccess, Payload: payload}
}

func Empty() FetchOutcome {
	return FetchOutcome{Kind: OutcomeEmpty}
}

func RateLimited(msg string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeRateLimited, Message: msg}
}

func APIError(msg string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeAPIError, Message: msg}
}

func TransportFailure(msg string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTransportFailure, Message: msg}
}

func Malformed(msg string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeMalformed, Message: msg}
}

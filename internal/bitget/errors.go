package bitget

import "fmt"

// UnknownAffiliateError reports a request for an affiliate id that was never
// configured. It is fatal for the call; there is nothing to retry.
type UnknownAffiliateError struct {
	AffiliateID string
}

func (e *UnknownAffiliateError) Error() string {
	return fmt.Sprintf("unknown affiliate id %q", e.AffiliateID)
}

// APIError reports a failed request: transport failure, non-2xx status or an
// application-level error code in a 200 response. The client does not retry;
// the extractor decides what a failed page means for its window.
type APIError struct {
	AffiliateID string
	Endpoint    string
	StatusCode  int
	Code        string
	Message     string
	Err         error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api request failed for affiliate %s on %s: %v", e.AffiliateID, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("api request failed for affiliate %s on %s: status=%d code=%s msg=%s",
		e.AffiliateID, e.Endpoint, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

package backend

import "fmt"

// HTTPError is returned when the backend answers with a non-200 status. Status
// and Body are preserved verbatim.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// TransportError is returned when the backend could not be reached or did not
// answer within the wait budget.
type TransportError struct {
	Cause   error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("backend timeout: %v", e.Cause)
	}
	return fmt.Sprintf("backend unreachable: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// DecodeError is returned when a 200 response body is not valid JSON.
type DecodeError struct {
	Body  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode backend response: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

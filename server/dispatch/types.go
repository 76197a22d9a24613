package dispatch

import (
	"fmt"

	"github.com/teilomillet/promptgate/errors"
)

// Kind names a dispatch pipeline.
type Kind string

const (
	KindChat Kind = "chat"
	KindCode Kind = "code"
)

// ParseKind maps a caller-supplied kind to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindChat, KindCode:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown dispatch kind %q", s)
	}
}

// ChatRequest is a chat turn. Nil fields take the configured defaults; fields
// that are present are used as given, even when empty.
type ChatRequest struct {
	Message     *string  `json:"message,omitempty"`
	Model       *string  `json:"model,omitempty"`
	RoleID      *int     `json:"role_id,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// CodeRequest is a code-generation request. Defaults apply as for ChatRequest.
type CodeRequest struct {
	Prompt      *string  `json:"prompt,omitempty"`
	Language    *string  `json:"language,omitempty"`
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// Result is the outcome of one dispatch: *ChatResult, *CodeResult or *Failure.
type Result interface {
	Succeeded() bool
	result()
}

// ChatResult is a successful chat dispatch. Role is the persona name.
type ChatResult struct {
	Success  bool   `json:"success"`
	Role     string `json:"role"`
	Response string `json:"response"`
	Model    string `json:"model"`
}

// CodeResult is a successful code dispatch. Raw is the backend content as
// received.
type CodeResult struct {
	Success     bool   `json:"success"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
	Raw         string `json:"raw"`
	Model       string `json:"model"`
}

// Failure reports a backend error. Details carries the backend body or the
// transport cause.
type Failure struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error"`
	ErrorType errors.ErrorType `json:"error_type"`
	Details   string           `json:"details,omitempty"`
	Timeout   bool             `json:"timeout,omitempty"`

	// Err is the backend error that caused the failure.
	Err error `json:"-"`
}

func (*ChatResult) Succeeded() bool { return true }
func (*CodeResult) Succeeded() bool { return true }
func (*Failure) Succeeded() bool    { return false }

func (*ChatResult) result() {}
func (*CodeResult) result() {}
func (*Failure) result()    {}

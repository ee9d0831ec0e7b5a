package openai

import "fmt"

// UploadError reports a failed file upload: either a non-success status
// (StatusCode set) or a transport/decoding failure (Err set).
type UploadError struct {
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file upload failed: %v", e.Err)
	}
	return fmt.Sprintf("file upload failed: status %d", e.StatusCode)
}

func (e *UploadError) Unwrap() error { return e.Err }

// AnalysisErrorKind classifies AnalysisError.
type AnalysisErrorKind int

const (
	KindNoOutput AnalysisErrorKind = iota + 1
	KindNoTextContent
	KindBadStatus
	KindBadResponse
	KindRequestFailed
)

func (k AnalysisErrorKind) String() string {
	switch k {
	case KindNoOutput:
		return "no_output"
	case KindNoTextContent:
		return "no_text_content"
	case KindBadStatus:
		return "bad_status"
	case KindBadResponse:
		return "bad_response"
	case KindRequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}

// AnalysisError reports a failed inference call.
type AnalysisError struct {
	Kind       AnalysisErrorKind
	StatusCode int
	Err        error
}

// Sentinels for errors.Is; only Kind is compared.
var (
	ErrNoOutput      = &AnalysisError{Kind: KindNoOutput}
	ErrNoTextContent = &AnalysisError{Kind: KindNoTextContent}
)

func (e *AnalysisError) Error() string {
	switch e.Kind {
	case KindNoOutput:
		return "analysis returned no output"
	case KindNoTextContent:
		return "analysis returned no text content"
	case KindBadStatus:
		return fmt.Sprintf("analysis failed: status %d", e.StatusCode)
	case KindBadResponse:
		return fmt.Sprintf("analysis response unreadable: %v", e.Err)
	default:
		return fmt.Sprintf("analysis request failed: %v", e.Err)
	}
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind
}

// LocalIOError reports a failure staging the payload on local disk.
type LocalIOError struct {
	Op  string
	Err error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local file %s: %v", e.Op, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

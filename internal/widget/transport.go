package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bluefermion/reviews/internal/model"
)

// User-facing messages. They are shown verbatim in the modal.
const (
	MsgNetwork       = "Network error. Please check your internet connection and try again."
	MsgInvalidPortal = "Invalid portal ID"
	MsgInvalidRating = "Invalid rating value"
	MsgGeneric       = "Failed to submit review. Please try again."
	MsgSelectRating  = "Please select a rating"
)

// ErrorKind classifies a failed submission.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindInvalidPortal
	KindInvalidRating
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindInvalidPortal:
		return "invalid_portal"
	case KindInvalidRating:
		return "invalid_rating"
	default:
		return "unknown"
	}
}

// SubmitError is returned by Transport implementations for every failure.
type SubmitError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 when no response arrived
	Backend string // backend error text, if the body carried one
	Err     error
}

func (e *SubmitError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("submit review (%s): %v", e.Kind, e.Err)
	case e.Backend != "":
		return fmt.Sprintf("submit review (%s, status %d): %s", e.Kind, e.Status, e.Backend)
	default:
		return fmt.Sprintf("submit review (%s, status %d)", e.Kind, e.Status)
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

// UserMessage maps the error kind to the text shown to the user.
func (e *SubmitError) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return MsgNetwork
	case KindInvalidPortal:
		return MsgInvalidPortal
	case KindInvalidRating:
		return MsgInvalidRating
	default:
		return MsgGeneric
	}
}

// UserMessage returns the message to show for any submission error.
// Errors that are not a *SubmitError get the generic message.
func UserMessage(err error) string {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return MsgGeneric
}

// Classify maps a backend error message onto a kind by substring.
func Classify(backend string) ErrorKind {
	switch {
	case strings.Contains(backend, "Invalid portal_id"):
		return KindInvalidPortal
	case strings.Contains(backend, "Rating must be between"):
		return KindInvalidRating
	default:
		return KindUnknown
	}
}

// Transport delivers one review submission.
type Transport interface {
	Submit(ctx context.Context, req model.ReviewSubmissionRequest) error
}

// HTTPTransport POSTs submissions as JSON.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
}

// NewHTTPTransport creates a transport for endpoint. A nil client uses
// http.DefaultClient; timeout bounds each request regardless of client.
func NewHTTPTransport(endpoint, apiKey string, timeout time.Duration, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &HTTPTransport{client: client, endpoint: endpoint, apiKey: apiKey, timeout: timeout}
}

// maxResponseBody caps how much of a response is read for classification.
const maxResponseBody = 64 << 10

// submitResult is the subset of both response shapes the transport inspects.
type submitResult struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (t *HTTPTransport) Submit(ctx context.Context, req model.ReviewSubmissionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &SubmitError{Kind: KindUnknown, Err: fmt.Errorf("encode request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return &SubmitError{Kind: KindUnknown, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		// Refused connections, DNS failures and the timeout all land here.
		return &SubmitError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &SubmitError{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var result submitResult
	parsed := json.Unmarshal(raw, &result) == nil

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if parsed && result.Success != nil && !*result.Success {
			return &SubmitError{Kind: Classify(result.Error), Status: resp.StatusCode, Backend: result.Error}
		}
		return nil
	}

	if !parsed || result.Error == "" {
		return &SubmitError{Kind: KindUnknown, Status: resp.StatusCode}
	}
	return &SubmitError{Kind: Classify(result.Error), Status: resp.StatusCode, Backend: result.Error}
}

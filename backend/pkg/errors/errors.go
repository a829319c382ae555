package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInference represents failures talking to the model endpoint
	ErrorTypeInference ErrorType = "inference"
	// ErrorTypeParse represents failures turning a response into proposals
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeSession represents extraction session guard violations
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeGraph represents graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents operator-initiated cancellation
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields. Message is written for
// the operator and is what the review surface shows.
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrorType returns the category of the error
func (e *BaseError) ErrorType() ErrorType {
	return e.Type
}

// UserMessage returns the operator-facing message
func (e *BaseError) UserMessage() string {
	return e.Message
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// typed is satisfied by BaseError and every error type embedding it
type typed interface {
	error
	ErrorType() ErrorType
	UserMessage() string
}

// Inference Errors

// ErrConnection is returned when the endpoint cannot be reached (transport failure)
type ErrConnection struct {
	*BaseError
	Endpoint string
}

func NewConnectionError(endpoint, hint string, err error) *ErrConnection {
	msg := "Cannot connect to AI endpoint."
	if hint != "" {
		msg += " " + hint
	}
	return &ErrConnection{
		BaseError: NewBaseError(ErrorTypeInference, msg, err),
		Endpoint:  endpoint,
	}
}

// ErrAuth is returned for 401/403 responses
type ErrAuth struct {
	*BaseError
	StatusCode int
}

func NewAuthError(statusCode int, err error) *ErrAuth {
	return &ErrAuth{
		BaseError:  NewBaseError(ErrorTypeInference, "Authentication failed. Check your API key in settings.", err),
		StatusCode: statusCode,
	}
}

// ErrModelNotFound is returned for 404 responses
type ErrModelNotFound struct {
	*BaseError
	Model string
}

func NewModelNotFound(model, hint string, err error) *ErrModelNotFound {
	msg := fmt.Sprintf("Model %q not found.", model)
	if hint != "" {
		msg += " " + hint
	}
	return &ErrModelNotFound{
		BaseError: NewBaseError(ErrorTypeInference, msg, err),
		Model:     model,
	}
}

// ErrRateLimited is returned for 429 responses
type ErrRateLimited struct {
	*BaseError
}

func NewRateLimited(err error) *ErrRateLimited {
	return &ErrRateLimited{
		BaseError: NewBaseError(ErrorTypeInference, "Rate limited. Wait a moment and try again.", err),
	}
}

// ErrServer is returned for any other non-2xx response
type ErrServer struct {
	*BaseError
	StatusCode int
	Body       string
}

func NewServerError(statusCode int, body string, err error) *ErrServer {
	if len(body) > 200 {
		body = body[:200]
	}
	return &ErrServer{
		BaseError:  NewBaseError(ErrorTypeInference, fmt.Sprintf("AI request failed (%d): %s", statusCode, body), err),
		StatusCode: statusCode,
		Body:       body,
	}
}

// ErrEmptyResponse is returned for a 2xx response without extractable content
type ErrEmptyResponse struct {
	*BaseError
	Model string
}

func NewEmptyResponse(model string, err error) *ErrEmptyResponse {
	return &ErrEmptyResponse{
		BaseError: NewBaseError(ErrorTypeInference, "AI response is empty or missing content. The model may still be loading.", err),
		Model:     model,
	}
}

// Context Errors

// ErrCancelled marks an operator-initiated abort. It is never shown as a failure.
type ErrCancelled struct {
	*BaseError
	Operation string
}

func NewCancelled(operation string, err error) *ErrCancelled {
	return &ErrCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Parse Errors

// ErrMalformedResponse is returned when no sanitizer stage yields parseable JSON
type ErrMalformedResponse struct {
	*BaseError
	Snippet string
}

func NewMalformedResponse(candidate string, err error) *ErrMalformedResponse {
	snippet := candidate
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	return &ErrMalformedResponse{
		BaseError: NewBaseError(ErrorTypeParse, "Failed to parse AI response as JSON.", err),
		Snippet:   snippet,
	}
}

// ErrNotAnObject is returned when the parsed response is valid JSON but not an object
var ErrNotAnObject = NewBaseError(ErrorTypeParse, "AI response is not a JSON object.", nil)

// ErrNoEntitiesFound is returned when a structurally valid response yields nothing
var ErrNoEntitiesFound = NewBaseError(ErrorTypeParse, "No entities or relationships found in the text. Try a longer or more detailed passage.", nil)

// Session Errors

// ErrTextTooLarge is returned when source text exceeds the character ceiling
type ErrTextTooLarge struct {
	*BaseError
	Length int
	Limit  int
}

func NewTextTooLarge(length, limit int) *ErrTextTooLarge {
	return &ErrTextTooLarge{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("Text exceeds %s characters. Please trim it to avoid overwhelming the model.", groupThousands(limit)), nil),
		Length:    length,
		Limit:     limit,
	}
}

// ErrEmptySourceText is returned when extraction is requested without text
var ErrEmptySourceText = NewBaseError(ErrorTypeSession, "Paste some text to extract entities from.", nil)

// ErrNothingAccepted is returned when commit is requested with no accepted items
var ErrNothingAccepted = NewBaseError(ErrorTypeSession, "Accept at least one entity or relationship before adding to the board.", nil)

// ErrNoSession is returned when an operation needs an open session
var ErrNoSession = NewBaseError(ErrorTypeSession, "No extraction session is open.", nil)

// ErrInvalidTransition is returned when an action is not allowed in the current phase
type ErrInvalidTransition struct {
	*BaseError
	Phase  string
	Action string
}

func NewInvalidTransition(phase, action string) *ErrInvalidTransition {
	return &ErrInvalidTransition{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("cannot %s while session is in %s", action, phase), nil),
		Phase:     phase,
		Action:    action,
	}
}

// ErrProposalNotFound is returned when a provisional identifier is unknown
type ErrProposalNotFound struct {
	*BaseError
	ProvisionalID string
}

func NewProposalNotFound(id string) *ErrProposalNotFound {
	return &ErrProposalNotFound{
		BaseError:     NewBaseError(ErrorTypeSession, fmt.Sprintf("proposal not found: %s", id), nil),
		ProvisionalID: id,
	}
}

// ErrInvalidProposalEdit is returned when a review-time edit would break a proposal
type ErrInvalidProposalEdit struct {
	*BaseError
	Field string
}

func NewInvalidProposalEdit(field, reason string) *ErrInvalidProposalEdit {
	return &ErrInvalidProposalEdit{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
	}
}

// ErrInvalidSettings is returned when replacement inference settings are rejected
type ErrInvalidSettings struct {
	*BaseError
	Field string
}

func NewInvalidSettings(field, reason string) *ErrInvalidSettings {
	return &ErrInvalidSettings{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the graph store cannot be opened
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to graph store: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph store operation fails
type ErrGraphQueryFailed struct {
	*BaseError
	Operation string
}

func NewGraphQueryFailed(operation string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("graph operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var t typed
	if stderrors.As(err, &t) {
		return t.ErrorType() == errType
	}
	return false
}

// IsCancelled reports whether err is an operator-initiated cancellation
func IsCancelled(err error) bool {
	var c *ErrCancelled
	return stderrors.As(err, &c)
}

// UserMessage returns the operator-facing message for err, falling back to
// err.Error() for errors outside this taxonomy.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var t typed
	if stderrors.As(err, &t) {
		return t.UserMessage()
	}
	return err.Error()
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}

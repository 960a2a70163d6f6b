package webrec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeCaptureFailed     = "CAPTURE_FAILED"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeDeviceUnavailable = "DEVICE_UNAVAILABLE"
	ErrCodeEncoderLoad       = "ENCODER_LOAD_FAILED"
	ErrCodeEncoding          = "ENCODING_FAILED"
	ErrCodeSessionActive     = "SESSION_ACTIVE"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeURLInvalid        = "URL_INVALID"
	ErrCodeStorage           = "STORAGE_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeUnknown           = "UNKNOWN_ERROR"
)

// Capture subsystem error codes.
const (
	CodePermissionDenied  = 1
	CodeDeviceUnavailable = 5
)

var (
	ErrSessionActive       = errors.New("a recording session is already active")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrRecorderFinished    = errors.New("recorder already finished")
	ErrURLRevoked          = errors.New("object URL revoked")
)

// RecorderError carries a machine-readable code next to the message.
type RecorderError struct {
	Message   string
	Code      string
	Details   map[string]interface{}
	Timestamp time.Time
	err       error
}

func NewRecorderError(message, code string) *RecorderError {
	return &RecorderError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func (e *RecorderError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)", e.Message, e.Code))
	if len(e.Details) > 0 {
		sb.WriteString(": ")
		first := true
		for k, v := range e.Details {
			if !first {
				sb.WriteString("; ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
	}
	return sb.String()
}

func (e *RecorderError) Unwrap() error {
	return e.err
}

// AddDetail attaches a key/value pair and returns the error for chaining.
func (e *RecorderError) AddDetail(key string, value interface{}) *RecorderError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *RecorderError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Specific error creators with common codes
func NewEncoderLoadError(encoding string, err error) *RecorderError {
	return WrapError(err, ErrCodeEncoderLoad).AddDetail("encoding", encoding)
}

func NewEncodingError(encoding string, err error) *RecorderError {
	return WrapError(err, ErrCodeEncoding).AddDetail("encoding", encoding)
}

func NewConfigError(message string) *RecorderError {
	return NewRecorderError(message, ErrCodeConfigInvalid)
}

func NewStorageError(err error) *RecorderError {
	return WrapError(err, ErrCodeStorage)
}

// WrapError wraps any error as a RecorderError, keeping it reachable
// through errors.Is / errors.As.
func WrapError(err error, code string) *RecorderError {
	if err == nil {
		return nil
	}
	var rErr *RecorderError
	if errors.As(err, &rErr) && rErr.Code == code {
		return rErr
	}
	wrapped := NewRecorderError(err.Error(), code)
	wrapped.err = err
	return wrapped
}

// IsErrorCode reports whether err is a RecorderError with the given code.
func IsErrorCode(err error, code string) bool {
	var rErr *RecorderError
	if !errors.As(err, &rErr) {
		return false
	}
	return rErr.Code == code
}

// IsRetryableError reports whether a fresh user-initiated attempt may succeed.
// Nothing is retried automatically.
func IsRetryableError(err error) bool {
	var rErr *RecorderError
	if !errors.As(err, &rErr) {
		return false
	}
	switch rErr.Code {
	case ErrCodeDeviceUnavailable, ErrCodeCaptureFailed, ErrCodeSessionActive, ErrCodeTimeout:
		return true
	}
	return false
}

// CaptureError is what the capture subsystem reports when a request fails.
// Code is zero when the failure has no numeric code.
type CaptureError struct {
	Code    int
	Message string
}

func (e *CaptureError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != 0 {
		return fmt.Sprintf("capture error %d", e.Code)
	}
	return "capture error"
}

// ErrorKind classifies a failed capture request.
type ErrorKind string

const (
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	KindOtherCapture      ErrorKind = "other_capture_error"
	KindUnknown           ErrorKind = "unknown_error"
	KindMessaged          ErrorKind = "messaged_error"
)

// ClassifyCaptureError maps an error from GetUserMedia to its kind.
func ClassifyCaptureError(err error) ErrorKind {
	var cErr *CaptureError
	if errors.As(err, &cErr) && cErr.Code != 0 {
		switch cErr.Code {
		case CodePermissionDenied:
			return KindPermissionDenied
		case CodeDeviceUnavailable:
			return KindDeviceUnavailable
		default:
			return KindOtherCapture
		}
	}
	if captureMessage(err) == "" {
		return KindUnknown
	}
	return KindMessaged
}

// DescribeCaptureError returns the message shown to the user for a failed
// capture request.
func DescribeCaptureError(err error) string {
	switch ClassifyCaptureError(err) {
	case KindPermissionDenied:
		return "You denied access to the microphone."
	case KindDeviceUnavailable:
		return "The microphone is not available."
	case KindOtherCapture:
		var cErr *CaptureError
		errors.As(err, &cErr)
		return fmt.Sprintf("Error accessing microphone: %d", cErr.Code)
	case KindMessaged:
		return captureMessage(err)
	}
	return "An unknown error occurred."
}

func captureMessage(err error) string {
	if err == nil {
		return ""
	}
	var cErr *CaptureError
	if errors.As(err, &cErr) {
		return cErr.Message
	}
	return err.Error()
}

// captureErrorCode translates a capture kind into a RecorderError code.
func captureErrorCode(kind ErrorKind) string {
	switch kind {
	case KindPermissionDenied:
		return ErrCodePermissionDenied
	case KindDeviceUnavailable:
		return ErrCodeDeviceUnavailable
	case KindOtherCapture:
		return ErrCodeCaptureFailed
	}
	return ErrCodeUnknown
}

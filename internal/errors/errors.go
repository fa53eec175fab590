// Package errors provides unified error handling with structured error codes.
// Codes map onto gRPC status codes and HTTP status codes so every surface
// reports the same taxonomy.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies an application error.
type Code int

const (
	Unknown Code = iota
	Internal
	InvalidArgument
	NotFound
	Unavailable
	CaptureFailed    // screen capture failed; transient, skip the cycle
	TemplateMissing  // no reference image for a region; region unmonitored
	TemplateInvalid  // reference image could not be decoded or is unusable
	RegionInvalid    // region rectangle does not fit the frame or template
	ConfigInvalid    // configuration rejected at startup
	DebugWriteFailed // debug image dump failed; never affects detection
)

var codeNames = [...]string{
	Unknown:          "UNKNOWN",
	Internal:         "INTERNAL",
	InvalidArgument:  "INVALID_ARGUMENT",
	NotFound:         "NOT_FOUND",
	Unavailable:      "UNAVAILABLE",
	CaptureFailed:    "CAPTURE_FAILED",
	TemplateMissing:  "TEMPLATE_MISSING",
	TemplateInvalid:  "TEMPLATE_INVALID",
	RegionInvalid:    "REGION_INVALID",
	ConfigInvalid:    "CONFIG_INVALID",
	DebugWriteFailed: "DEBUG_WRITE_FAILED",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return codeNames[Unknown]
	}
	return codeNames[c]
}

// codeFromString is the inverse of String, falling back to Unknown.
func codeFromString(s string) Code {
	for i, name := range codeNames {
		if name == s {
			return Code(i)
		}
	}
	return Unknown
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:          codes.Unknown,
	Internal:         codes.Internal,
	InvalidArgument:  codes.InvalidArgument,
	NotFound:         codes.NotFound,
	Unavailable:      codes.Unavailable,
	CaptureFailed:    codes.Unavailable,
	TemplateMissing:  codes.NotFound,
	TemplateInvalid:  codes.InvalidArgument,
	RegionInvalid:    codes.InvalidArgument,
	ConfigInvalid:    codes.FailedPrecondition,
	DebugWriteFailed: codes.Internal,
}

var httpCodeMap = map[Code]int{
	Unknown:          http.StatusInternalServerError,
	Internal:         http.StatusInternalServerError,
	InvalidArgument:  http.StatusBadRequest,
	NotFound:         http.StatusNotFound,
	Unavailable:      http.StatusServiceUnavailable,
	CaptureFailed:    http.StatusServiceUnavailable,
	TemplateMissing:  http.StatusNotFound,
	TemplateInvalid:  http.StatusUnprocessableEntity,
	RegionInvalid:    http.StatusBadRequest,
	ConfigInvalid:    http.StatusBadRequest,
	DebugWriteFailed: http.StatusInternalServerError,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the corresponding HTTP status code.
func (e *AppError) HTTPStatus() int {
	if c, ok := httpCodeMap[e.Code]; ok {
		return c
	}
	return http.StatusInternalServerError
}

// ToStruct converts the error to a protobuf Struct detail.
func (e *AppError) ToStruct() *structpb.Struct {
	fields := map[string]any{
		"code":    e.Code.String(),
		"message": e.Message,
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	detail, err := structpb.NewStruct(fields)
	if err != nil {
		return &structpb.Struct{}
	}
	return detail
}

// GRPCStatus returns a gRPC status with the error detail attached.
// status.FromError picks this up, so an AppError returned from a handler
// crosses the wire with its code intact.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.ToStruct()); err == nil {
		st = withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		appErr := &AppError{
			Code:    codeFromString(fields["code"].GetStringValue()),
			Message: fields["message"].GetStringValue(),
		}
		if md := fields["metadata"].GetStructValue(); md != nil {
			for k, v := range md.GetFields() {
				appErr.WithMetadata(k, v.GetStringValue())
			}
		}
		return appErr
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

// grpcToCode maps gRPC codes back to our codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return ConfigInvalid
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable returns true if the condition may clear on a later cycle.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case Unavailable, CaptureFailed:
		return true
	default:
		return false
	}
}

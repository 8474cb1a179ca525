package status

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Status carries a canonical code and a human readable message for
// control-plane and data-plane outcomes. A nil *Status means OK.
type Status struct {
	code    codes.Code
	message string
}

func New(code codes.Code, message string) *Status {
	if code == codes.OK {
		return nil
	}
	return &Status{code: code, message: message}
}

func Internal(message string) *Status {
	return New(codes.Internal, message)
}

func PermissionDenied(message string) *Status {
	return New(codes.PermissionDenied, message)
}

func NotFound(message string) *Status {
	return New(codes.NotFound, message)
}

func InvalidArgument(message string) *Status {
	return New(codes.InvalidArgument, message)
}

func Unavailable(message string) *Status {
	return New(codes.Unavailable, message)
}

func DeadlineExceeded(message string) *Status {
	return New(codes.DeadlineExceeded, message)
}

func FromError(code codes.Code, err error) *Status {
	if err == nil {
		return nil
	}
	return New(code, err.Error())
}

func (s *Status) Code() codes.Code {
	if s == nil {
		return codes.OK
	}
	return s.code
}

func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

func (s *Status) OK() bool {
	return s.Code() == codes.OK
}

func (s *Status) String() string {
	if s.OK() {
		return "OK"
	}
	return fmt.Sprintf("%s: %s", s.code.String(), s.message)
}

func (s *Status) Err() error {
	if s.OK() {
		return nil
	}
	return s
}

func (s *Status) Error() string {
	return s.String()
}

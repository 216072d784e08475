package errors

import (
	"errors"
	"fmt"
)

// Code identifies a caller-visible error kind. Codes are part of the public
// contract: HTTP layers translate them to specific user-facing messages.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeInternal     Code = "INTERNAL"
	CodeLockTimeout  Code = "LOCK_TIMEOUT"

	// Invite lifecycle
	CodeInviteNotPending Code = "INVITE_NOT_PENDING"
	CodeInviteExpired    Code = "INVITE_EXPIRED"
	CodeInviteEmailBound Code = "INVITE_EMAIL_MISMATCH"

	// Seat pool
	CodeNoCapacity     Code = "NO_CAPACITY"
	CodeTooManyPending Code = "TOO_MANY_PENDING_INVITES"
	CodePlanTooSmall   Code = "PLAN_TOO_SMALL"
	CodeFamilyFull     Code = "FAMILY_FULL"

	// Membership
	CodeAlreadyMember        Code = "ALREADY_MEMBER_OF_THIS_FAMILY"
	CodeMemberOfOtherFamily  Code = "MEMBER_OF_OTHER_FAMILY"
	CodeOwnerOfOtherFamily   Code = "OWNER_OF_OTHER_FAMILY"
	CodeOwnerCannotAcceptOwn Code = "OWNER_CANNOT_ACCEPT_OWN"
	CodeHasActiveEntitlement Code = "HAS_ACTIVE_ENTITLEMENT"
	CodeNotOwner             Code = "NOT_FAMILY_OWNER"
	CodeNotMember            Code = "NOT_FAMILY_MEMBER"
)

// AppError is the error type every service method returns for expected
// business outcomes. Infrastructure failures are wrapped with CodeInternal.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same caller may retry the identical request.
func (e *AppError) Retryable() bool {
	return e.Code == CodeLockTimeout
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal server error", Err: err}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

func LockTimeout(err error) *AppError {
	return &AppError{Code: CodeLockTimeout, Message: "resource busy, try again", Err: err}
}

// CodeOf extracts the Code from err, or CodeInternal when err is not an AppError.
func CodeOf(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

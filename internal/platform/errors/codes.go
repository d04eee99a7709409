// Package errors provides structured error handling for the social sync engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Argument errors
	CodeLocalUserIDRequired Code = "LOCAL_USER_ID_REQUIRED"
	CodeUserListEmpty       Code = "USER_LIST_EMPTY"
	CodeUserListTooLarge    Code = "USER_LIST_TOO_LARGE"
	CodeUserIDInvalid       Code = "USER_ID_INVALID"
	CodeGroupNotFound       Code = "GROUP_NOT_FOUND"

	// Registration errors
	CodeLocalUserAlreadyAdded Code = "LOCAL_USER_ALREADY_ADDED"
	CodeLocalUserNotAdded     Code = "LOCAL_USER_NOT_ADDED"
	CodeGroupKindMismatch     Code = "GROUP_KIND_MISMATCH"
	CodeLocalUserNotFound     Code = "LOCAL_USER_NOT_FOUND"

	// Remote errors
	CodeFetchFailed       Code = "FETCH_FAILED"
	CodePushChannelFailed Code = "PUSH_CHANNEL_FAILED"
	CodeGraphClosed       Code = "GRAPH_CLOSED"
)

// Category groups codes by how callers are expected to react.
type Category string

const (
	CategoryUnknown               Category = "unknown"
	CategoryInvalidArgument       Category = "invalidArgument"
	CategoryLogicError            Category = "logicError"
	CategoryNotFound              Category = "notFound"
	CategoryRemoteOperationFailed Category = "remoteOperationFailed"
)

// Category returns the taxonomy bucket of the code.
//
// invalidArgument, logicError and notFound are returned synchronously from the
// call that caused them. remoteOperationFailed only reaches callers through
// published events.
func (c Code) Category() Category {
	switch c {
	case CodeLocalUserIDRequired,
		CodeUserListEmpty,
		CodeUserListTooLarge,
		CodeUserIDInvalid,
		CodeGroupNotFound:
		return CategoryInvalidArgument
	case CodeLocalUserAlreadyAdded,
		CodeLocalUserNotAdded,
		CodeGroupKindMismatch:
		return CategoryLogicError
	case CodeLocalUserNotFound:
		return CategoryNotFound
	case CodeFetchFailed,
		CodePushChannelFailed,
		CodeGraphClosed:
		return CategoryRemoteOperationFailed
	default:
		return CategoryUnknown
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c.Category() {
	// InvalidArgument - validation failures, bad input
	case CategoryInvalidArgument:
		return codes.InvalidArgument

	// FailedPrecondition - registration state doesn't allow operation
	case CategoryLogicError:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CategoryNotFound:
		return codes.NotFound

	// Unavailable - upstream service or push channel failed
	case CategoryRemoteOperationFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

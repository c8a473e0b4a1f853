package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrInvalidParticipants = fmt.Errorf("invalid participants")
	ErrEmptyContent        = fmt.Errorf("message content is empty")
	ErrContentTooLong      = fmt.Errorf("message content is too long")
	ErrInvalidMessageType  = fmt.Errorf("invalid message type")
	ErrInvalidCursor       = fmt.Errorf("invalid pagination cursor")
	ErrInvalidPayload      = fmt.Errorf("invalid payload")
	ErrInvalidStatus       = fmt.Errorf("invalid presence status")

	ErrNotParticipant       = fmt.Errorf("user is not a participant of this conversation")
	ErrNotMessageOwner      = fmt.Errorf("only the original sender can modify this message")
	ErrConversationInactive = fmt.Errorf("conversation is no longer active")

	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")

	ErrConversationExists = fmt.Errorf("conversation already exists")

	ErrTransientStore = fmt.Errorf("transient store error")

	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSlowConsumer       = fmt.Errorf("connection buffer exceeded")
	ErrNotConnected       = fmt.Errorf("not connected")
	ErrReconnectExhausted = fmt.Errorf("reconnection attempts exhausted")
	ErrTerminated         = fmt.Errorf("connection terminated")
	ErrHandshakeTimeout   = fmt.Errorf("handshake timed out")

	ErrUnauthenticated = fmt.Errorf("authentication required")
	ErrInvalidToken    = fmt.Errorf("invalid or expired token")

	ErrRateLimited = fmt.Errorf("too many events, slow down")
)

// Kind is the stable error classification exposed to REST and socket clients.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindTransientStore   Kind = "transient_store_error"
	KindConnection       Kind = "connection_error"
	KindUnauthenticated  Kind = "unauthenticated"
	KindTimeout          Kind = "timeout"
	KindRateLimited      Kind = "rate_limited"
	KindInternal         Kind = "internal"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrInvalidParticipants, ErrEmptyContent, ErrContentTooLong,
		ErrInvalidMessageType, ErrInvalidCursor, ErrInvalidPayload, ErrInvalidStatus}},
	{KindPermissionDenied, []error{ErrNotParticipant, ErrNotMessageOwner, ErrConversationInactive}},
	{KindNotFound, []error{ErrConversationNotFound, ErrMessageNotFound}},
	{KindConflict, []error{ErrConversationExists}},
	{KindTransientStore, []error{ErrTransientStore}},
	{KindConnection, []error{ErrConnectionClosed, ErrSlowConsumer, ErrNotConnected,
		ErrReconnectExhausted, ErrTerminated, ErrHandshakeTimeout}},
	{KindUnauthenticated, []error{ErrUnauthenticated, ErrInvalidToken}},
	{KindRateLimited, []error{ErrRateLimited}},
}

// KindOf classifies err, including wrapped errors.
// Context deadlines map to KindTimeout, anything unknown to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if stderrors.Is(err, target) {
				return k.kind
			}
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindPermissionDenied, KindNotFound, KindConflict, KindUnauthenticated:
		return true
	}
	return false
}

// HTTPStatus maps a Kind to the status code used by the REST layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransientStore, KindConnection:
		return http.StatusServiceUnavailable
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

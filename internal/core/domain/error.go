package domain

import (
	"errors"
)

var (
	ErrInternal = errors.New("internal error")

	// * Data errors.
	ErrDataNotFound    = errors.New("data not found")
	ErrConflictingData = errors.New("data conflicts with existing data in unique column")

	// * Communication errors.
	ErrBadRequest  = errors.New("error parsing request")
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// * Authority errors.
	ErrExpiredToken               = errors.New("access token has expired")
	ErrInvalidToken               = errors.New("access token is invalid")
	ErrEmptyAuthorizationHeader   = errors.New("authorization header is not provided")
	ErrInvalidAuthorizationHeader = errors.New("authorization header format is invalid")
	ErrInvalidAuthorizationType   = errors.New("authorization type is not supported")
	ErrUnauthorized               = errors.New("user is unauthorized to access the resource")
	ErrForbidden                  = errors.New("user is forbidden to access the resource")

	// * Business errors.
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrEmptyOrder          = errors.New("order has no items")
	ErrBadQuantity         = errors.New("item quantity must be positive")
	ErrCartOwnership       = errors.New("cart belongs to another user")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled in its current status")
	ErrInsufficientStock   = errors.New("insufficient stock for product")
)

package status

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// Code is a stable, client-facing identifier for a failure.
type Code string

const (
	CodeValidation              Code = "VALIDATION_FAILED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeQuantityExceedsLimit    Code = "QUANTITY_EXCEEDS_LIMIT"
	CodeSalesClosed             Code = "SALES_CLOSED"
	CodeOrderNotPending         Code = "ORDER_NOT_PENDING"
	CodeOrderNotCancelable      Code = "ORDER_NOT_CANCELABLE"
	CodeTransferIneligible      Code = "TRANSFER_INELIGIBLE"
	CodeTicketLocked            Code = "TICKET_LOCKED"
	CodePriceExceedsCeiling     Code = "PRICE_EXCEEDS_CEILING"
	CodeBuyerNotFound           Code = "BUYER_NOT_FOUND"
	CodeSelfTransferNotAllowed  Code = "SELF_TRANSFER_NOT_ALLOWED"
	CodeInvalidTransferState    Code = "INVALID_TRANSFER_STATE"
	CodeTransferExpired         Code = "TRANSFER_EXPIRED"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeInvalidCode             Code = "INVALID_CODE"
	CodeTicketAlreadyUsed       Code = "TICKET_ALREADY_USED"
	CodeTicketCancelled         Code = "TICKET_CANCELLED"
	CodeTicketRefunded          Code = "TICKET_REFUNDED"
	CodeTicketChargeback        Code = "TICKET_CHARGEBACK"
	CodeTicketBlocked           Code = "TICKET_BLOCKED"
	CodeDuplicateCheckIn        Code = "DUPLICATE_CHECK_IN"
	CodeOutsideCheckInWindow    Code = "OUTSIDE_CHECK_IN_WINDOW"
	CodeRefundNotEligible       Code = "REFUND_NOT_ELIGIBLE"
	CodeChargebackResolved      Code = "CHARGEBACK_RESOLVED"
	CodeInvalidSignature        Code = "INVALID_SIGNATURE"
	CodePaymentTargetInvalid    Code = "PAYMENT_TARGET_INVALID"
	CodeCodeGenerationExhausted Code = "CODE_GENERATION_EXHAUSTED"
)

// Reasons carried in the "reason" metadata key.
const (
	ReasonNotOwner           = "not_owner"
	ReasonNotActive          = "not_active"
	ReasonLocked             = "locked"
	ReasonAlreadyTransferred = "already_transferred"
	ReasonNotOpen            = "not_open"
	ReasonClosed             = "closed"
)

var (
	ErrValidation              = New(CodeValidation, "request: validation failed")
	ErrNotFound                = New(CodeNotFound, "resource: not found")
	ErrInsufficientStock       = New(CodeInsufficientStock, "inventory: insufficient stock")
	ErrQuantityExceedsLimit    = New(CodeQuantityExceedsLimit, "order: quantity outside per-order limits")
	ErrSalesClosed             = New(CodeSalesClosed, "order: ticket type is not on sale")
	ErrOrderNotPending         = New(CodeOrderNotPending, "order: order is not pending payment")
	ErrOrderNotCancelable      = New(CodeOrderNotCancelable, "order: order can no longer be cancelled")
	ErrTransferIneligible      = New(CodeTransferIneligible, "transfer: ticket is not eligible for transfer")
	ErrTicketLocked            = New(CodeTicketLocked, "ticket: ticket is held by a pending transfer or refund")
	ErrPriceExceedsCeiling     = New(CodePriceExceedsCeiling, "transfer: asking price exceeds face value")
	ErrBuyerNotFound           = New(CodeBuyerNotFound, "transfer: buyer not found")
	ErrSelfTransferNotAllowed  = New(CodeSelfTransferNotAllowed, "transfer: cannot transfer a ticket to yourself")
	ErrInvalidTransferState    = New(CodeInvalidTransferState, "transfer: action not allowed in current state")
	ErrTransferExpired         = New(CodeTransferExpired, "transfer: transfer has expired")
	ErrUnauthorized            = New(CodeUnauthorized, "auth: not allowed to perform this action")
	ErrInvalidCode             = New(CodeInvalidCode, "check-in: ticket code not recognised")
	ErrTicketAlreadyUsed       = New(CodeTicketAlreadyUsed, "check-in: ticket already used")
	ErrTicketCancelled         = New(CodeTicketCancelled, "check-in: ticket was cancelled")
	ErrTicketRefunded          = New(CodeTicketRefunded, "check-in: ticket was refunded")
	ErrTicketChargeback        = New(CodeTicketChargeback, "check-in: ticket payment was charged back")
	ErrTicketBlocked           = New(CodeTicketBlocked, "check-in: ticket is blocked")
	ErrDuplicateCheckIn        = New(CodeDuplicateCheckIn, "check-in: ticket already checked in")
	ErrOutsideCheckInWindow    = New(CodeOutsideCheckInWindow, "check-in: outside check-in window")
	ErrRefundNotEligible       = New(CodeRefundNotEligible, "refund: order is not eligible for refund")
	ErrChargebackResolved      = New(CodeChargebackResolved, "chargeback: dispute already resolved")
	ErrInvalidSignature        = New(CodeInvalidSignature, "payment: webhook signature invalid")
	ErrPaymentTargetInvalid    = New(CodePaymentTargetInvalid, "payment: notification must reference exactly one order or transfer")
	ErrCodeGenerationExhausted = New(CodeCodeGenerationExhausted, "ticket: could not generate a unique code")
)

// Error is a domain failure with a stable code and optional metadata for clients.
type Error struct {
	Code     Code              `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Cause    error             `json:"-"`
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause to a copy of e.
func Wrap(e *Error, cause error) *Error {
	c := e.clone()
	c.Cause = cause
	return c
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMeta returns a copy of e with key set in its metadata.
func (e *Error) WithMeta(key, value string) *Error {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]string, 1)
	}
	c.Metadata[key] = value
	return c
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	c := e.clone()
	c.Message = fmt.Sprintf(format, args...)
	return c
}

func (e *Error) clone() *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Metadata: maps.Clone(e.Metadata),
		Cause:    e.Cause,
	}
}

// HTTPStatus maps the error code onto a transport status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeSelfTransferNotAllowed, CodePaymentTargetInvalid, CodeQuantityExceedsLimit:
		return http.StatusBadRequest
	case CodeInvalidSignature:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound, CodeBuyerNotFound, CodeInvalidCode:
		return http.StatusNotFound
	case CodeTransferExpired:
		return http.StatusGone
	case CodeCodeGenerationExhausted:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

// CodeOf extracts the code from err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MetaOf returns a metadata value from a domain error.
func MetaOf(err error, key string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata[key]
	}
	return ""
}

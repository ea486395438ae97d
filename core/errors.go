package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeUnauthorized        = "PAYCHAIN_UNAUTHORIZED"
	ErrorCodePaymentNotFailed    = "PAYCHAIN_PAYMENT_NOT_FAILED"
	ErrorCodeInvalidMessageData  = "PAYCHAIN_INVALID_MESSAGE_DATA"
	ErrorCodeAlreadyPaid         = "PAYCHAIN_ALREADY_PAID"
	ErrorCodeRequestExpired      = "PAYCHAIN_REQUEST_EXPIRED"
	ErrorCodeNotInitialized      = "PAYCHAIN_NOT_INITIALIZED"
	ErrorCodeAlreadyInitialized  = "PAYCHAIN_ALREADY_INITIALIZED"
	ErrorCodeNotFound            = "PAYCHAIN_NOT_FOUND"
	ErrorCodePaymentExists       = "PAYCHAIN_PAYMENT_EXISTS"
	ErrorCodeRequestExists       = "PAYCHAIN_REQUEST_EXISTS"
	ErrorCodeDuplicateMessage    = "PAYCHAIN_DUPLICATE_MESSAGE"
	ErrorCodeCustodyInsufficient = "PAYCHAIN_CUSTODY_INSUFFICIENT"
	ErrorCodeInsufficientFunds   = "PAYCHAIN_INSUFFICIENT_FUNDS"
	ErrorCodeInvalidTransition   = "PAYCHAIN_INVALID_TRANSITION"
	ErrorCodeBadInput            = "PAYCHAIN_BAD_INPUT"
	ErrorCodeConflict            = "PAYCHAIN_CONFLICT"
	ErrorCodeOperationFailed     = "PAYCHAIN_OPERATION_FAILED"
	ErrorCodeExternalFailure     = "PAYCHAIN_EXTERNAL_FAILURE"
	ErrorCodeRateLimited         = "PAYCHAIN_RATE_LIMITED"
	ErrorCodeInternal            = "PAYCHAIN_INTERNAL_ERROR"
)

var (
	ErrUnauthorized           = errors.New("core: caller lacks the required capability")
	ErrPaymentNotFailed       = errors.New("core: payment is not in failed status")
	ErrInvalidMessageData     = errors.New("core: invalid message data")
	ErrAlreadyPaid            = errors.New("core: payment request already paid")
	ErrRequestExpired         = errors.New("core: payment request expired")
	ErrNotInitialized         = errors.New("core: deployment not initialized")
	ErrAlreadyInitialized     = errors.New("core: deployment already initialized")
	ErrPaymentNotFound        = errors.New("core: payment not found")
	ErrPaymentRequestNotFound = errors.New("core: payment request not found")
	ErrPaymentExists          = errors.New("core: payment already exists")
	ErrPaymentRequestExists   = errors.New("core: payment request already exists")
	ErrDuplicateMessage       = errors.New("core: message already consumed")
	ErrCustodyInsufficient    = errors.New("core: custody balance is insufficient")
	ErrInsufficientFunds      = errors.New("core: insufficient funds")
	ErrOfframpNotFound        = errors.New("core: offramp entry not found")
)

type sentinelClass struct {
	err      error
	category goerrors.Category
	textCode string
}

// sentinelClasses is ordered; the first errors.Is match wins.
var sentinelClasses = []sentinelClass{
	{ErrUnauthorized, goerrors.CategoryAuth, ErrorCodeUnauthorized},
	{ErrPaymentNotFailed, goerrors.CategoryConflict, ErrorCodePaymentNotFailed},
	{ErrInvalidMessageData, goerrors.CategoryBadInput, ErrorCodeInvalidMessageData},
	{ErrAlreadyPaid, goerrors.CategoryConflict, ErrorCodeAlreadyPaid},
	{ErrRequestExpired, goerrors.CategoryConflict, ErrorCodeRequestExpired},
	{ErrNotInitialized, goerrors.CategoryNotFound, ErrorCodeNotInitialized},
	{ErrAlreadyInitialized, goerrors.CategoryConflict, ErrorCodeAlreadyInitialized},
	{ErrPaymentNotFound, goerrors.CategoryNotFound, ErrorCodeNotFound},
	{ErrPaymentRequestNotFound, goerrors.CategoryNotFound, ErrorCodeNotFound},
	{ErrOfframpNotFound, goerrors.CategoryNotFound, ErrorCodeNotFound},
	{ErrPaymentExists, goerrors.CategoryConflict, ErrorCodePaymentExists},
	{ErrPaymentRequestExists, goerrors.CategoryConflict, ErrorCodeRequestExists},
	{ErrDuplicateMessage, goerrors.CategoryConflict, ErrorCodeDuplicateMessage},
	{ErrCustodyInsufficient, goerrors.CategoryConflict, ErrorCodeCustodyInsufficient},
	{ErrInsufficientFunds, goerrors.CategoryConflict, ErrorCodeInsufficientFunds},
	{ErrInvalidPaymentTransition, goerrors.CategoryConflict, ErrorCodeInvalidTransition},
	{ErrInvalidBytes32, goerrors.CategoryBadInput, ErrorCodeBadInput},
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	for _, class := range sentinelClasses {
		if errors.Is(err, class.err) {
			return ensureServiceErrorEnvelope(
				goerrors.Wrap(err, class.category, err.Error()).
					WithTextCode(class.textCode),
			)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "exceeds"),
		strings.Contains(msg, "overflow"),
		strings.Contains(msg, "unknown"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryNotFound:
		return ErrorCodeNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorCodeUnauthorized
	case goerrors.CategoryConflict:
		return ErrorCodeConflict
	case goerrors.CategoryOperation:
		return ErrorCodeOperationFailed
	case goerrors.CategoryExternal:
		return ErrorCodeExternalFailure
	default:
		return ErrorCodeInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorTextCode returns the stable text code carried by err, or "" when err
// is not a go-errors envelope.
func ErrorTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return richErr.TextCode
	}
	return ""
}

// HasErrorCode reports whether err carries textCode.
func HasErrorCode(err error, textCode string) bool {
	return err != nil && ErrorTextCode(err) == textCode
}

// ErrorStatus returns the HTTP status carried by err, defaulting to 500.
func ErrorStatus(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// MapError normalises err into the service error envelope.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

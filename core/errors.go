package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CatalogErrorBadInput        = "CATALOG_BAD_INPUT"
	CatalogErrorUnauthorized    = "CATALOG_UNAUTHORIZED"
	CatalogErrorMappingFailed   = "CATALOG_MAPPING_FAILED"
	CatalogErrorUpstreamFailure = "CATALOG_UPSTREAM_FAILURE"
	CatalogErrorSyncInProgress  = "CATALOG_SYNC_IN_PROGRESS"
	CatalogErrorNotFound        = "CATALOG_NOT_FOUND"
	CatalogErrorInternal        = "CATALOG_INTERNAL_ERROR"
)

func catalogError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func catalogWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return catalogError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	err.Category = category
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// ValidationError reports a malformed inbound request.
func ValidationError(message string, metadata map[string]any) error {
	return catalogError(message, goerrors.CategoryBadInput, http.StatusBadRequest, CatalogErrorBadInput, metadata)
}

// AuthenticationError reports a delivery whose authenticity could not be proven.
func AuthenticationError(message string, metadata map[string]any) error {
	return catalogError(message, goerrors.CategoryAuth, http.StatusUnauthorized, CatalogErrorUnauthorized, metadata)
}

// MappingError reports a payload that could not be translated into snapshots.
func MappingError(source error, message string, metadata map[string]any) error {
	return catalogWrapError(
		source,
		goerrors.CategoryValidation,
		message,
		http.StatusUnprocessableEntity,
		CatalogErrorMappingFailed,
		metadata,
	)
}

// UpstreamError reports a failed call to the external catalog.
func UpstreamError(source error, message string, metadata map[string]any) error {
	return catalogWrapError(
		source,
		goerrors.CategoryExternal,
		message,
		http.StatusBadGateway,
		CatalogErrorUpstreamFailure,
		metadata,
	)
}

func SyncInProgressError(resource ResourceKind) error {
	return catalogWrapError(
		ErrLeaseHeld,
		goerrors.CategoryConflict,
		"reconciliation already running for "+string(resource),
		http.StatusConflict,
		CatalogErrorSyncInProgress,
		map[string]any{"resource": string(resource)},
	)
}

func NotFoundError(source error, message string, metadata map[string]any) error {
	return catalogWrapError(source, goerrors.CategoryNotFound, message, http.StatusNotFound, CatalogErrorNotFound, metadata)
}

func InternalError(source error, message string) error {
	return catalogWrapError(source, goerrors.CategoryInternal, message, http.StatusInternalServerError, CatalogErrorInternal, nil)
}

func IsMappingError(err error) bool {
	return hasTextCode(err, CatalogErrorMappingFailed)
}

func IsUpstreamError(err error) bool {
	return hasTextCode(err, CatalogErrorUpstreamFailure)
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}

// HTTPStatus maps any error onto the response code a caller should see.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			return richErr.Code
		}
		return statusForCategory(richErr.Category)
	}
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrSyncStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLeaseHeld):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidResource):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// TextCode returns the stable catalog text code carried by err.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
		return richErr.TextCode
	}
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return CatalogErrorNotFound
	case http.StatusConflict:
		return CatalogErrorSyncInProgress
	case http.StatusBadRequest:
		return CatalogErrorBadInput
	default:
		return CatalogErrorInternal
	}
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
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
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

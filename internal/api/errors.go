package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/tasktrail-api/internal/api/shared"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/service"
	"github.com/phrazzld/tasktrail-api/internal/service/auth"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

const genericErrorMessage = "An unexpected error occurred"

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrTagNotFound),
		errors.Is(err, service.ErrAssigneeNotFound),
		store.IsNotFoundError(err):
		return http.StatusNotFound

	// Conflict errors
	case store.IsDuplicateError(err):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrInvalidTaskPriority),
		errors.Is(err, domain.ErrInvalidActivityAction),
		errors.Is(err, domain.ErrEmptyTaskTitle),
		errors.Is(err, domain.ErrEmptyTaskProjectID),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, store.ErrInvalidFilter),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return genericErrorMessage
	}

	var notFound *service.NotFoundError
	var fieldErr *domain.ValidationError
	var validationErrs validator.ValidationErrors

	switch {
	// Not found errors name the missing entity and id
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, store.ErrProjectNotFound):
		return "Project not found"
	case errors.Is(err, service.ErrTagNotFound), errors.Is(err, store.ErrTagNotFound):
		return "Tag not found"

	case errors.Is(err, service.ErrNoSystemUser):
		return "No user is available to attribute the change to"

	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	// Bad request errors
	case errors.As(err, &fieldErr):
		return fieldErr.Error()
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, domain.ErrEmptyTaskTitle):
		return "title is required"
	case errors.Is(err, domain.ErrInvalidTaskStatus):
		return "status must be one of todo, in_progress, done"
	case errors.Is(err, domain.ErrInvalidTaskPriority):
		return "priority must be one of low, medium, high"
	case errors.Is(err, domain.ErrInvalidActivityAction):
		return "action must be one of created, updated, deleted, tag_added, tag_removed"
	case errors.Is(err, store.ErrInvalidEntity), errors.Is(err, domain.ErrValidation):
		return "Invalid entity data"

	case store.IsDuplicateError(err):
		return "Entity already exists"

	default:
		return genericErrorMessage
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first failing field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}
	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag(), fe.Param()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag, param string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid":
		return "must be a valid UUID"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "datetime":
		return "must be a date"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. fallback, when
// set, replaces the generic message of unrecognized internal errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" && message == genericErrorMessage {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paychain/core"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Message  string                `json:"message"`
	Category string                `json:"category,omitempty"`
	TextCode string                `json:"text_code,omitempty"`
	Fields   []goerrors.FieldError `json:"fields,omitempty"`
	Metadata map[string]any        `json:"metadata,omitempty"`
}

func writeError(c *gin.Context, err error) {
	mapped := core.MapError(err)
	status := core.ErrorStatus(mapped)
	payload := errorPayload{Message: mapped.Error()}
	var rich *goerrors.Error
	if goerrors.As(mapped, &rich) && rich != nil {
		payload.Message = rich.Message
		payload.Category = fmt.Sprint(rich.Category)
		payload.TextCode = rich.TextCode
		payload.Fields = rich.ValidationErrors
		payload.Metadata = rich.Metadata
	}
	c.AbortWithStatusJSON(status, errorBody{Error: payload})
}

func badRequest(message string, field string) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorCodeBadInput)
	if field != "" {
		err.WithMetadata(map[string]any{"field": field})
	}
	return err
}

func unauthorized(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorCodeUnauthorized)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// bind decodes the JSON body into dst and writes a 400 on failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]goerrors.FieldError, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			fields = append(fields, goerrors.FieldError{
				Field:   fieldErr.Field(),
				Message: fmt.Sprintf("failed %q validation", fieldErr.Tag()),
			})
		}
		writeError(c, goerrors.NewValidation("httpapi: request body validation failed", fields...).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorCodeBadInput))
		return false
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(c, goerrors.New("httpapi: request body too large", goerrors.CategoryBadInput).
			WithCode(http.StatusRequestEntityTooLarge).
			WithTextCode(core.ErrorCodeBadInput))
		return false
	}
	writeError(c, badRequest("httpapi: request body is not valid json: "+err.Error(), ""))
	return false
}

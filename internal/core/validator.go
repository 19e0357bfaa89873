package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"satlearn/internal/types"
)

// Validator wraps go-playground/validator and translates validation failures
// into the AppError taxonomy so handlers return consistent 400 responses.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct runs the validator tags on the given struct and returns a
// *types.AppError describing the first set of violations, or nil when valid.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fields := make([]string, 0, len(verrs))
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		fields = append(fields, field)
		details[field] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"invalid request: "+strings.Join(fields, ", "),
		err,
		details,
	)
}

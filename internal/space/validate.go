package space

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// dimensionSpec is the validator-tagged shape ParseDimension decodes into
// before constructing a Dimension, mirroring the teacher's pattern of
// validating a decoded struct with go-playground/validator rather than
// hand-rolled field checks.
type dimensionSpec struct {
	Name  string `validate:"required,max=256"`
	Kind  Kind   `validate:"required,oneof=real integer categorical fidelity"`
	Shape []int  `validate:"omitempty,dive,gt=0"`
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateDimensionShape checks the decoded name/kind/shape combination
// against struct-tag rules before the Dimension is constructed. Prior
// argument arity is checked separately by ParsePrior's own arithmetic, which
// validator's struct tags cannot express.
func validateDimensionShape(name string, kind Kind, shape []int) error {
	spec := dimensionSpec{Name: name, Kind: kind, Shape: shape}
	if err := getValidator().Struct(spec); err != nil {
		return &ErrInvalidDefinition{Token: name, Reason: fmt.Sprintf("dimension spec validation failed: %v", err), Cause: err}
	}
	return nil
}

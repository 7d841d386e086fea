package params

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrBadParams is matched by every user-input error produced while rendering.
var ErrBadParams = errors.New("bad params")

// ErrInvalidSchema is returned when a Schema cannot be rendered safely.
var ErrInvalidSchema = errors.New("invalid param schema")

// MissingParameterError is returned when a required parameter has no value and no default.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("require param %s", e.Name)
}

func (e *MissingParameterError) Is(target error) bool {
	return target == ErrBadParams
}

// InvalidParameterValueError is returned when a parameter with a value map
// receives a value that is not one of the map's keys.
type InvalidParameterValueError struct {
	Name  string
	Value string
}

func (e *InvalidParameterValueError) Error() string {
	return fmt.Sprintf("bad param %s: %q is not an allowed value", e.Name, e.Value)
}

func (e *InvalidParameterValueError) Is(target error) bool {
	return target == ErrBadParams
}

package elevation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCRS is returned for datasets without a coordinate reference system.
var ErrMissingCRS = errors.New("input dataset has no CRS")

// InputValueError reports an argument outside its set of accepted values.
type InputValueError struct {
	Name  string
	Given string
	Valid []string
}

func (e *InputValueError) Error() string {
	return fmt.Sprintf("given %s %q is invalid, valid options are: %s", e.Name, e.Given, strings.Join(e.Valid, ", "))
}

package validator

import (
	"fmt"
	"reflect"
)

// Validate fails when any dep is nil or the zero value of its type.
func Validate(name string, deps ...any) error {
	for i, dep := range deps {
		if dep == nil {
			return fmt.Errorf("missing required dep %d for component: %s", i, name)
		}

		v := reflect.ValueOf(dep)
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			if v.IsNil() {
				return fmt.Errorf("missing required dep %d for component: %s", i, name)
			}
		default:
			if v.IsZero() {
				return fmt.Errorf("missing required dep %d for component: %s", i, name)
			}
		}
	}

	return nil
}

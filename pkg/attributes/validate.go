package attributes

import (
	"fmt"
	"strconv"
)

// Validate applies the same structural rules as Parse to a map built in code:
// no empty attribute names, valid number literals, nesting within MaxDepth.
func Validate(m *Map) error {
	return validateValue(Object(m), "$", 0)
}

func validateValue(v Value, path string, depth int) error {
	switch v.kind {
	case KindNull, KindString, KindBool:
		return nil
	case KindNumber:
		if _, err := strconv.ParseFloat(v.num.String(), 64); err != nil {
			return &MalformedError{Path: path, Reason: "invalid number"}
		}
		return nil
	case KindMap:
		if depth >= MaxDepth {
			return &MalformedError{Path: path, Reason: fmt.Sprintf("nesting exceeds %d levels", MaxDepth)}
		}
		var err error
		v.m.Range(func(k string, child Value) bool {
			if k == "" {
				err = &MalformedError{Path: path, Reason: "empty attribute name"}
				return false
			}
			err = validateValue(child, path+"."+k, depth+1)
			return err == nil
		})
		return err
	case KindList:
		if depth >= MaxDepth {
			return &MalformedError{Path: path, Reason: fmt.Sprintf("nesting exceeds %d levels", MaxDepth)}
		}
		for i, item := range v.list {
			if err := validateValue(item, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return &MalformedError{Path: path, Reason: "unknown value kind"}
}

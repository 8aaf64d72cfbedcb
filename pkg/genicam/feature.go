// Package genicam models string-keyed camera features in the style of the
// GenICam Standard Feature Naming Convention (SFNC).
package genicam

import (
	"errors"
	"fmt"
)

// Type is the value type of a feature.
type Type int

const (
	TypeUnknown Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeEnum
	TypeCommand
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeEnum:
		return "enum"
	case TypeCommand:
		return "command"
	default:
		return "unknown"
	}
}

// ParseType converts a profile/register-map type name to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "int", "integer":
		return TypeInt, nil
	case "float", "double":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "enum", "enumeration":
		return TypeEnum, nil
	case "command":
		return TypeCommand, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown feature type %q", s)
	}
}

// Query selects which aspect of a numeric feature is inquired.
type Query int

const (
	QueryValue Query = iota
	QueryMin
	QueryMax
)

func (q Query) String() string {
	switch q {
	case QueryMin:
		return "min"
	case QueryMax:
		return "max"
	default:
		return "value"
	}
}

var (
	ErrNotFound = errors.New("feature not found")
	ErrAccess   = errors.New("feature access denied")
	ErrType     = errors.New("feature type mismatch")
	ErrRange    = errors.New("feature value out of range")
)

// FeatureError records a failed operation on a named feature.
type FeatureError struct {
	Op      string
	Feature string
	Err     error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Feature, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }

func featureErr(op, name string, err error) error {
	return &FeatureError{Op: op, Feature: name, Err: err}
}

// Inquirer reads feature values.
type Inquirer interface {
	FeatureType(name string) (Type, error)
	String(name string) (string, error)
	Int(q Query, name string) (int64, error)
	Float(q Query, name string) (float64, error)
	Bool(name string) (bool, error)
	EnumEntries(name string) ([]string, error)
}

// Controller writes feature values and executes commands.
type Controller interface {
	SetString(name, value string) error
	SetInt(name string, value int64) error
	SetFloat(name string, value float64) error
	SetBool(name string, value bool) error
	Execute(name string) error
}

// Device is the full string-keyed feature protocol of a camera.
type Device interface {
	Inquirer
	Controller
}

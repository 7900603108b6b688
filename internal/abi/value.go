package abi

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrTypeMismatch is returned when a value is read as a type it doesn't hold.
var ErrTypeMismatch = errors.New("value type mismatch")

// Type is the type of a value crossing the isolation boundary.
type Type uint8

const (
	TypeVoid Type = iota
	TypeBool
	TypeInt
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Value is a typed parameter or return value.
type Value struct {
	Type   Type   `cbor:"1,keyasint"`
	Bool   bool   `cbor:"2,keyasint,omitempty"`
	Int    int64  `cbor:"3,keyasint,omitempty"`
	String string `cbor:"4,keyasint,omitempty"`
}

// Void returns the empty value.
func Void() Value { return Value{Type: TypeVoid} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Type: TypeInt, Int: i} }

// String returns a string value.
func String(s string) Value { return Value{Type: TypeString, String: s} }

// AsBool returns the bool held by the value.
func (v Value) AsBool() (bool, error) {
	if v.Type != TypeBool {
		return false, fmt.Errorf("expected %s, got %s: %w", TypeBool, v.Type, ErrTypeMismatch)
	}
	return v.Bool, nil
}

// AsInt returns the integer held by the value.
func (v Value) AsInt() (int64, error) {
	if v.Type != TypeInt {
		return 0, fmt.Errorf("expected %s, got %s: %w", TypeInt, v.Type, ErrTypeMismatch)
	}
	return v.Int, nil
}

// AsString returns the string held by the value.
func (v Value) AsString() (string, error) {
	if v.Type != TypeString {
		return "", fmt.Errorf("expected %s, got %s: %w", TypeString, v.Type, ErrTypeMismatch)
	}
	return v.String, nil
}

func (v Value) validate() error {
	if v.Type == TypeString && !utf8.ValidString(v.String) {
		return ErrInvalidString
	}
	return nil
}

package advice

import (
	"fmt"
	"strings"
)

// Kind says what the weaver must pass for one hook parameter.
type Kind int

const (
	Receiver Kind = iota
	MethodArg
	MethodArgArray
	MethodName
	ReturnValue
	OptionalReturnValue
	Thrown
	Traveler
	ClassMeta
	MethodMeta
)

var kindNames = [...]string{
	Receiver:            "receiver",
	MethodArg:           "method_arg",
	MethodArgArray:      "method_arg_array",
	MethodName:          "method_name",
	ReturnValue:         "return_value",
	OptionalReturnValue: "optional_return_value",
	Thrown:              "thrown",
	Traveler:            "traveler",
	ClassMeta:           "class_meta",
	MethodMeta:          "method_meta",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the snake_case name of a kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

// Role is one of the five fixed interception points of an advice.
type Role int

const (
	IsEnabled Role = iota
	OnBefore
	OnReturn
	OnThrow
	OnAfter
)

// Roles lists every role in invocation order.
var Roles = [...]Role{IsEnabled, OnBefore, OnReturn, OnThrow, OnAfter}

var roleNames = [...]string{
	IsEnabled: "isEnabled",
	OnBefore:  "onBefore",
	OnReturn:  "onReturn",
	OnThrow:   "onThrow",
	OnAfter:   "onAfter",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// allowedOn reports whether a binding kind may appear on a hook of role r.
func (k Kind) allowedOn(r Role) bool {
	switch k {
	case ReturnValue, OptionalReturnValue:
		return r == OnReturn
	case Thrown:
		return r == OnThrow
	case Traveler:
		return r != IsEnabled && r != OnBefore
	}
	return true
}

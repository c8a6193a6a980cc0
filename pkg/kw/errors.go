package kw

import (
	"errors"
	"fmt"
)

var (
	// ErrIntrospection matches every IntrospectionError.
	ErrIntrospection = errors.New("cannot introspect callee parameters")

	// ErrUnexpectedKeyword matches every UnexpectedKeywordError.
	ErrUnexpectedKeyword = errors.New("unexpected keyword argument")

	// ErrBind matches every BindError.
	ErrBind = errors.New("cannot bind keyword arguments")
)

// IntrospectionError reports that no ParameterSet could be derived for a callee.
type IntrospectionError struct {
	Callee string // type or description of the callee
	Reason string
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("cannot introspect parameters of %s: %s", e.Callee, e.Reason)
}

func (e *IntrospectionError) Is(target error) bool { return target == ErrIntrospection }

// UnexpectedKeywordError mirrors the failure an ordinary fixed-signature
// function raises for an unknown keyword. Key is one of the unclaimed keys.
type UnexpectedKeywordError struct {
	Func string
	Key  string
}

func (e *UnexpectedKeywordError) Error() string {
	if e.Func == "" {
		return fmt.Sprintf("got an unexpected keyword argument '%s'", e.Key)
	}
	return fmt.Sprintf("%s() got an unexpected keyword argument '%s'", e.Func, e.Key)
}

func (e *UnexpectedKeywordError) Is(target error) bool { return target == ErrUnexpectedKeyword }

// BindError reports a bag value that cannot be stored in the callee's parameter.
type BindError struct {
	Key    string
	Target string
	Reason string
}

func (e *BindError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cannot bind keyword arguments to %s: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("cannot bind keyword argument '%s' to %s: %s", e.Key, e.Target, e.Reason)
}

func (e *BindError) Is(target error) bool { return target == ErrBind }

// Package errors turns errors into short, low-cardinality tags for metrics and
// audit rows.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"
)

// Rule tags errors matching Target (via errors.Is) with Class.
type Rule struct {
	Target error
	Class  string
}

// Classifier checks its rules in order, then the built-in context and network
// rules, then falls back to the innermost error's type name.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a Classifier over rules. Rules with a nil target or an
// empty class are ignored.
func NewClassifier(rules ...Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		if r.Target != nil && r.Class != "" {
			c.rules = append(c.rules, r)
		}
	}
	return c
}

// Classify returns "" for nil.
func (c *Classifier) Classify(err error) string {
	if err == nil {
		return ""
	}
	if c != nil {
		for _, r := range c.rules {
			if goerrors.Is(err, r.Target) {
				return r.Class
			}
		}
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "net_timeout"
	}
	return TypeName(err)
}

// Classify is the rule-less classifier.
func Classify(err error) string {
	return (*Classifier)(nil).Classify(err)
}

// TypeName names the innermost error's concrete type as pkg_type. Joined
// errors are followed through their first member.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	err = innermost(err)

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.NewReplacer("*", "", ".", "_").Replace(t.String()))
	if name == "" {
		return "unknown"
	}
	return name
}

func innermost(err error) error {
	for {
		switch e := err.(type) { //nolint:errorlint // walking the chain by hand
		case interface{ Unwrap() error }:
			next := e.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := e.Unwrap()
			if len(errs) == 0 || errs[0] == nil {
				return err
			}
			err = errs[0]
		default:
			return err
		}
	}
}

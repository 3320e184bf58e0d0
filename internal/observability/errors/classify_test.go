package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

type plainErr struct{}

func (plainErr) Error() string { return "plain" }

func TestTypeName(t *testing.T) {
	assert.Empty(t, TypeName(nil))
	assert.Equal(t, "errors_plainerr", TypeName(fmt.Errorf("wrap: %w", plainErr{})))
	assert.Equal(t, "errors_plainerr", TypeName(&plainErr{}))
	assert.Equal(t, "errors_plainerr", TypeName(goerrors.Join(plainErr{}, goerrors.New("other"))))
	assert.Equal(t, "errors_errorstring", TypeName(goerrors.New("plain")))
}

func TestClassifier(t *testing.T) {
	errRejected := goerrors.New("rejected")
	errGone := goerrors.New("gone")

	c := NewClassifier(
		Rule{Target: errRejected, Class: "rejected"},
		Rule{Target: errGone, Class: ""},
		Rule{Target: nil, Class: "ignored"},
	)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rule", fmt.Errorf("login: %w", errRejected), "rejected"},
		{"empty class ignored", errGone, "errors_errorstring"},
		{"deadline", fmt.Errorf("me: %w", context.DeadlineExceeded), "deadline_exceeded"},
		{"canceled", context.Canceled, "canceled"},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), "net_timeout"},
		{"fallback", plainErr{}, "errors_plainerr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.err))
		})
	}
}

func TestClassify_NoRules(t *testing.T) {
	assert.Equal(t, "canceled", Classify(context.Canceled))
	assert.Equal(t, "errors_plainerr", Classify(plainErr{}))
}

package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op and message", Unauthorized("gotrue.sign_in", MsgInvalidCredentials), "gotrue.sign_in: Invalid login credentials"},
		{"message only", &Error{Message: "boom"}, "boom"},
		{"falls back to cause", Unavailable(errors.New("connection refused"), "gotrue.sign_in", ""), "gotrue.sign_in: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorHelpers_ThroughWrapping(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := fmt.Errorf("submit: %w", Unavailable(cause, "gotrue.sign_up", ""))

	assert.Equal(t, EUNAVAILABLE, ErrorCode(err))
	assert.Equal(t, "gotrue.sign_up", ErrorOp(err))
	assert.Empty(t, ErrorMessage(err))
	assert.ErrorIs(t, err, cause)
}

func TestErrorHelpers_PlainErrors(t *testing.T) {
	err := errors.New("User already registered")

	assert.Equal(t, EINTERNAL, ErrorCode(err))
	assert.Equal(t, "User already registered", ErrorMessage(err))
	assert.Empty(t, ErrorOp(err))
}

func TestErrorHelpers_Nil(t *testing.T) {
	assert.Empty(t, ErrorCode(nil))
	assert.Empty(t, ErrorMessage(nil))
	assert.Empty(t, ErrorOp(nil))
}

func TestNewProfile(t *testing.T) {
	assert.Equal(t, Profile{ID: "u1", Username: "neo"}, NewProfile("u1", "neo"))
}

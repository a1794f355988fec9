package github

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"

	"github.com/sevigo/regression-warden/internal/core"
)

func ghError(status int) error {
	return &github.ErrorResponse{
		Response: &http.Response{
			StatusCode: status,
			Request:    &http.Request{},
		},
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.ErrorKind
	}{
		{"Unauthorized", ghError(401), core.KindAuth},
		{"Forbidden", ghError(403), core.KindAuth},
		{"Not found", ghError(404), core.KindNotFound},
		{"Rate limited", ghError(429), core.KindTransient},
		{"Server error", ghError(502), core.KindTransient},
		{"Unprocessable", ghError(422), core.KindInternal},
		{"Deadline exceeded", context.DeadlineExceeded, core.KindTransient},
		{"Plain error", errors.New("boom"), core.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.KindOf(classifyError(tt.err)))
		})
	}

	assert.NoError(t, classifyError(nil))
}

func TestIsBinary(t *testing.T) {
	text := "package main\n"
	nulled := "ELF\x00\x01\x02"
	invalid := string([]byte{0xff, 0xfe, 0xfd})

	assert.False(t, isBinary(nil))
	assert.False(t, isBinary(&text))
	assert.True(t, isBinary(&nulled))
	assert.True(t, isBinary(&invalid))
}

//go:build !windows

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_CallsWorkload(t *testing.T) {
	want := errors.New("boom")
	called := false
	err := Run(context.Background(), "slothunterd", func(ctx context.Context) error {
		called = true
		return want
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, want)
}

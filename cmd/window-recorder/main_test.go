package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	windowrecorder "github.com/e7canasta/orion-care-sensor/modules/window-recorder"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/lifecycle"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"clean end of stream", nil, exitOK},
		{"window not found", &windowrecorder.ResolutionError{Selector: "x", Err: windowrecorder.ErrNotFound}, exitResolution},
		{"wrapped construction", fmt.Errorf("run: %w", &windowrecorder.ConstructionError{Op: "link", Err: errors.New("boom")}), exitConstruction},
		{"stage failure", &windowrecorder.RuntimeError{NodePath: "encoder-0", Message: "unsupported profile"}, exitRuntime},
		{"drain timeout", lifecycle.ErrDrainTimeout, exitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

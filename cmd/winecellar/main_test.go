package main

import (
	"errors"
	"fmt"
	"testing"

	"winecellar/internal/services"
)

func TestExitCodeFollowsErrorClass(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrValidation, "capture", "rating", "out of range", nil), 2},
		{fmt.Errorf("load: %w", services.ErrConfiguration), 3},
		{services.Wrap(services.ErrRetriesExhausted, "url_fetch", "GET", "503", nil), 5},
		{fmt.Errorf("note not saved: %w", services.ErrPersistence), 7},
		{errors.New("2 of 3 notes failed to sync"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

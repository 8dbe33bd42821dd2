package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrConnectionNotFound,
		ErrAccountNotFound,
		ErrItemAlreadyLinked,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}

func TestSentinelErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("loading connection conn-1: %w", ErrConnectionNotFound)
	if !errors.Is(wrapped, ErrConnectionNotFound) {
		t.Error("expected wrapped error to match ErrConnectionNotFound")
	}
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status        int
		wantPermanent bool
	}{
		{400, true},
		{401, true},
		{403, true},
		{429, true},
		{500, false},
		{502, false},
		{503, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := classifyStatus("test", tt.status)
			if IsPermanent(err) != tt.wantPermanent {
				t.Errorf("status %d: permanent = %v, want %v", tt.status, IsPermanent(err), tt.wantPermanent)
			}
			if IsTransient(err) == tt.wantPermanent {
				t.Errorf("status %d: transient = %v, want %v", tt.status, IsTransient(err), !tt.wantPermanent)
			}
		})
	}
}

func TestClassifyRequestErrorPassesThroughCancellation(t *testing.T) {
	err := classifyRequestError("test", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation must pass through untouched")
	}
	if IsTransient(err) {
		t.Errorf("cancellation must not be classified transient")
	}
}

func TestClassifyRequestErrorTimeout(t *testing.T) {
	err := classifyRequestError("test", context.DeadlineExceeded)
	if !IsTransient(err) {
		t.Errorf("deadline exceeded must be transient")
	}
}

func TestErrorWrapping(t *testing.T) {
	inner := errors.New("boom")

	te := Transient("news", inner)
	if !errors.Is(te, inner) {
		t.Errorf("transient error must wrap the cause")
	}
	if !IsTransient(fmt.Errorf("fetch: %w", te)) {
		t.Errorf("classification must survive further wrapping")
	}

	pe := Permanent("dart", 401, inner)
	if !IsPermanent(fmt.Errorf("fetch: %w", pe)) {
		t.Errorf("permanent classification must survive wrapping")
	}
}

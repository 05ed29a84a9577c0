package timer

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{999 * time.Millisecond, "00:00"},
		{time.Second, "00:01"},
		{59_999 * time.Millisecond, "00:59"},
		{65_000 * time.Millisecond, "01:05"},
		{3_661_000 * time.Millisecond, "61:01"},
		{-5 * time.Second, "00:00"},
	}

	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

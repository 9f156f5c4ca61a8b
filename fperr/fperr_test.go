package fperr

import (
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{DecodeError, "DecodeError"},
		{NumericOverflow, "NumericOverflow"},
		{IntegrityError, "IntegrityError"},
		{Kind(999), "Kind(999)"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(Timeout, "deadline exceeded after %d keys", 5)
	if err.Error() != "Timeout: deadline exceeded after 5 keys" {
		t.Errorf("Error() = %q", err.Error())
	}

	bare := &Error{Kind: NoPeaks}
	if bare.Error() != "NoPeaks" {
		t.Errorf("Error() with empty Msg = %q", bare.Error())
	}
}

func TestIs(t *testing.T) {
	err := New(EmptyAudio, "no samples")
	if !Is(err, EmptyAudio) {
		t.Error("Is(err, EmptyAudio) = false, want true")
	}
	if Is(err, NoFrames) {
		t.Error("Is(err, NoFrames) = true, want false")
	}
	if Is(errors.New("plain"), EmptyAudio) {
		t.Error("Is(plain error, EmptyAudio) = true, want false")
	}
}

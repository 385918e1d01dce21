package lifecycle

import "testing"

func TestState_CanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateInitializing, true},
		{StateUninitialized, StateReady, false},
		{StateInitializing, StateReady, true},
		{StateInitializing, StateRunning, false},
		{StateReady, StateRunning, true},
		{StateReady, StateProcessingLanguage, true},
		{StateRunning, StateReady, true},
		{StateRunning, StateProcessingLanguage, true},
		{StateProcessingLanguage, StateRunning, true},
		{StateProcessingLanguage, StateReady, true},
		{StateReady, StateUninitialized, false},
		{StateRunning, StateError, true},
		{StateReady, StateDisabled, true},
		{StateDisabled, StateReady, false},
		{StateDisabled, StateError, false},
	}
	for _, tc := range cases {
		got := tc.from.CanTransition(tc.to)
		if got != tc.want {
			t.Errorf("State(%q).CanTransition(%q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

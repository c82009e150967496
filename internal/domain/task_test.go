package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduceStatuses(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all completed", []string{StatusCompleted, StatusCompleted}, StatusCompleted},
		{"mixed success and failure", []string{StatusCompleted, StatusFailed}, StatusPartialSuccess},
		{"all failed", []string{StatusFailed, StatusFailed}, StatusFailed},
		{"nothing ran", nil, StatusFailed},
		{"partial counts as success", []string{StatusPartialSuccess, StatusFailed}, StatusPartialSuccess},
		{"all cancelled", []string{StatusCancelled, StatusCancelled}, StatusCancelled},
		{"cancelled mixed with success", []string{StatusCompleted, StatusCancelled}, StatusPartialSuccess},
		{"single failure", []string{StatusFailed}, StatusFailed},
		{"single success", []string{StatusCompleted}, StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ReduceStatuses(tc.statuses))
		})
	}
}

func TestCapabilityKey(t *testing.T) {
	// Order and duplicates must not change the key.
	assert.Equal(t, CapabilityKey([]string{"security", "static"}), CapabilityKey([]string{"static", "security"}))
	assert.Equal(t, "security,static", CapabilityKey([]string{"Static", " security ", "static"}))
	assert.Equal(t, "", CapabilityKey(nil))
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusPartialSuccess, StatusFailed, StatusCancelled} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{StatusPending, StatusRunning, "bogus"} {
		assert.False(t, IsTerminal(s), s)
	}
}

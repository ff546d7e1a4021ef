package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"zero expiry fails safe", time.Time{}, true},
		{"future expiry", now.Add(time.Hour), false},
		{"past expiry", now.Add(-time.Second), true},
		{"exactly now", now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expired(tt.expiry, now))
		})
	}
}

func TestExpiringSoon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buffer := 2 * time.Minute

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"zero expiry fails safe", time.Time{}, true},
		{"well before the buffer", now.Add(time.Hour), false},
		{"inside the buffer", now.Add(time.Minute), true},
		{"exactly at the buffer", now.Add(buffer), true},
		{"already expired", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpiringSoon(tt.expiry, now, buffer))
		})
	}
}

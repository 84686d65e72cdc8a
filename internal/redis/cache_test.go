package redis

import (
	"testing"
	"time"
)

func TestPixTTL(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		expiresAt time.Time
		want      time.Duration
	}{
		{"no expiry", time.Time{}, 15 * time.Minute},
		{"expires soon", now.Add(5 * time.Minute), 5 * time.Minute},
		{"expires later than cap", now.Add(24 * time.Hour), 15 * time.Minute},
		{"already expired", now.Add(-time.Minute), -time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pixTTL(now, tc.expiresAt, 15*time.Minute); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

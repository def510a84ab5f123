package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessKeyDisplayStatus(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		status   KeyStatus
		expires  time.Time
		expected KeyDisplayStatus
	}{
		{"Active far from expiry", KeyStatusActive, now.AddDate(0, 0, 30), DisplayActive},
		{"Active inside warning window", KeyStatusActive, now.Add(3 * 24 * time.Hour), DisplayExpiringSoon},
		{"Active but past expiry", KeyStatusActive, now.Add(-time.Hour), DisplayExpired},
		{"Suspended wins over expiry", KeyStatusSuspended, now.Add(-time.Hour), DisplaySuspended},
		{"Expired status", KeyStatusExpired, now.AddDate(0, 0, 30), DisplayExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &AccessKey{Status: tt.status, ExpiresAt: tt.expires}
			assert.Equal(t, tt.expected, key.DisplayStatus(now, ExpiryWarningWindow))
		})
	}
}

func TestAccessKeyDisplayStatusUrgentWindow(t *testing.T) {
	now := time.Now()
	key := &AccessKey{Status: KeyStatusActive, ExpiresAt: now.Add(3 * 24 * time.Hour)}

	// 3 days out is "expiring soon" on the 7-day admin window but not on the 1-day one
	assert.Equal(t, DisplayExpiringSoon, key.DisplayStatus(now, ExpiryWarningWindow))
	assert.Equal(t, DisplayActive, key.DisplayStatus(now, UrgentExpiryWarningWindow))
}

func TestAccessKeyUsageExhausted(t *testing.T) {
	max := 3

	unlimited := &AccessKey{UsageCount: 1000}
	assert.False(t, unlimited.UsageExhausted())

	remaining := &AccessKey{UsageCount: 2, MaxUsage: &max}
	assert.False(t, remaining.UsageExhausted())

	exhausted := &AccessKey{UsageCount: 3, MaxUsage: &max}
	assert.True(t, exhausted.UsageExhausted())
}

func TestAccessKeyDaysUntilExpiry(t *testing.T) {
	now := time.Now()

	exactly := &AccessKey{ExpiresAt: now.Add(48 * time.Hour)}
	assert.Equal(t, 2, exactly.DaysUntilExpiry(now))

	partial := &AccessKey{ExpiresAt: now.Add(36 * time.Hour)}
	assert.Equal(t, 2, partial.DaysUntilExpiry(now))

	justExpired := &AccessKey{ExpiresAt: now.Add(-time.Hour)}
	assert.Equal(t, -1, justExpired.DaysUntilExpiry(now))

	past := &AccessKey{ExpiresAt: now.Add(-25 * time.Hour)}
	assert.Equal(t, -2, past.DaysUntilExpiry(now))
}

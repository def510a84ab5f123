package hybrid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

func TestPresenceValue(t *testing.T) {
	value, keep := presenceValue(domain.AgentOnline)
	assert.True(t, keep)
	assert.Equal(t, "online", value)

	value, keep = presenceValue(domain.AgentBusy)
	assert.True(t, keep)
	assert.Equal(t, "busy", value)

	_, keep = presenceValue(domain.AgentOffline)
	assert.False(t, keep)
}

func TestOverlayPresence(t *testing.T) {
	users := []domain.User{
		{ID: "a-1", IsOnline: true}, // heartbeat stopped, presence expired
		{ID: "a-2", IsOnline: false},
		{ID: "a-3", IsOnline: true},
	}

	merged := overlayPresence(users, []string{"a-2", "a-3"})

	assert.False(t, merged[0].IsOnline)
	assert.True(t, merged[1].IsOnline)
	assert.True(t, merged[2].IsOnline)
}

func TestOverlayPresenceEmpty(t *testing.T) {
	users := []domain.User{{ID: "a-1", IsOnline: true}}

	merged := overlayPresence(users, nil)

	assert.False(t, merged[0].IsOnline)
}

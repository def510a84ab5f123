package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidStatusTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     AgentStatus
		to       AgentStatus
		expected bool
	}{
		{"Offline to online", AgentOffline, AgentOnline, true},
		{"Offline to busy", AgentOffline, AgentBusy, false},
		{"Offline to break", AgentOffline, AgentBreak, false},
		{"Online to busy", AgentOnline, AgentBusy, true},
		{"Online to break", AgentOnline, AgentBreak, true},
		{"Online to training", AgentOnline, AgentTraining, true},
		{"Online to offline", AgentOnline, AgentOffline, true},
		{"Busy to online", AgentBusy, AgentOnline, true},
		{"Busy to break", AgentBusy, AgentBreak, true},
		{"Busy to training", AgentBusy, AgentTraining, false},
		{"Break to online", AgentBreak, AgentOnline, true},
		{"Break to busy", AgentBreak, AgentBusy, false},
		{"Training to online", AgentTraining, AgentOnline, true},
		{"Training to busy", AgentTraining, AgentBusy, false},
		{"Unknown source state", AgentStatus("vacation"), AgentOnline, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidStatusTransition(tt.from, tt.to))
		})
	}
}

func TestAvailableTransitions(t *testing.T) {
	assert.ElementsMatch(t, []AgentStatus{AgentOnline}, AvailableTransitions(AgentOffline))
	assert.ElementsMatch(t,
		[]AgentStatus{AgentBusy, AgentBreak, AgentOffline, AgentTraining},
		AvailableTransitions(AgentOnline))
	assert.Empty(t, AvailableTransitions(AgentStatus("vacation")))
}

func TestAvailableTransitionsReturnsCopy(t *testing.T) {
	first := AvailableTransitions(AgentOffline)
	first[0] = AgentBusy

	// mutation must not leak into the shared table
	assert.Equal(t, []AgentStatus{AgentOnline}, AvailableTransitions(AgentOffline))
}

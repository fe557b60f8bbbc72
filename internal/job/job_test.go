package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestGroupComplete(t *testing.T) {
	tests := []struct {
		name          string
		statuses      []Status
		wantComplete  bool
		wantSucceeded bool
	}{
		{
			name:     "empty group",
			statuses: nil,
		},
		{
			name:     "all pending",
			statuses: []Status{StatusPending, StatusPending, StatusPending},
		},
		{
			name:     "one still processing",
			statuses: []Status{StatusCompleted, StatusProcessing, StatusCompleted},
		},
		{
			name:          "all completed",
			statuses:      []Status{StatusCompleted, StatusCompleted, StatusCompleted},
			wantComplete:  true,
			wantSucceeded: true,
		},
		{
			name:         "terminal with one failure",
			statuses:     []Status{StatusCompleted, StatusFailed, StatusCompleted},
			wantComplete: true,
		},
		{
			name:         "all failed",
			statuses:     []Status{StatusFailed, StatusFailed, StatusFailed},
			wantComplete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := make([]Record, len(tt.statuses))
			for i, s := range tt.statuses {
				members[i] = Record{JobID: "j", Status: s}
			}

			assert.Equal(t, tt.wantComplete, GroupComplete(members))
			if tt.wantComplete {
				assert.Equal(t, tt.wantSucceeded, GroupSucceeded(members))
			}
		})
	}
}

func TestRecordRequest(t *testing.T) {
	rec := Record{
		JobID:       "g1:twap",
		JobGroupID:  "g1",
		Kind:        KindTwap,
		WindowStart: 10,
		WindowEnd:   20,
		Status:      StatusProcessing,
	}

	assert.Equal(t, Request{
		JobID:       "g1:twap",
		JobGroupID:  "g1",
		Kind:        KindTwap,
		WindowStart: 10,
		WindowEnd:   20,
	}, rec.Request())
}

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Lane
	}{
		// Shutdown requires the exact phrase.
		{"shutdown", LaneShutdown},
		{"shut down", LaneShutdown},
		{"please shut down the reactor", LaneChat},

		// Media control keywords.
		{"pause", LaneMediaControl},
		{"skip this song", LaneMediaControl},
		{"turn the volume up", LaneMediaControl},

		// Workflow build needs a creation verb AND an automation noun.
		{"build a daily standup reminder workflow", LaneWorkflow},
		{"create an automation that waters my plants", LaneWorkflow},
		{"deploy the notification pipeline", LaneWorkflow},
		{"tell me about workflows", LaneChat},
		{"build a birdhouse", LaneChat},

		// Scheduling questions never trigger the builder.
		{"do i have a reminder set for tomorrow", LaneChat},
		{"did you create that reminder", LaneChat},

		// Memory update phrasing.
		{"update your memory: I moved to Austin", LaneMemoryUpdate},
		{"remember that my sister's birthday is in June", LaneMemoryUpdate},

		// Default lane.
		{"what's the weather in Austin tomorrow", LaneChat},
		{"how do black holes evaporate", LaneChat},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.text), "text: %q", tc.text)
	}
}

func TestMediaBeatsWorkflowOnTies(t *testing.T) {
	// Priority order, not specificity: media keywords win even when build
	// phrasing is present.
	assert.Equal(t, LaneMediaControl, Classify("create a playlist for my workout schedule"))
}

func TestIsConfirmOnly(t *testing.T) {
	assert.True(t, IsConfirmOnly("do i have any reminders today"))
	assert.True(t, IsConfirmOnly("when is my next mission"))
	assert.False(t, IsConfirmOnly("build a reminder workflow"))
	assert.False(t, IsConfirmOnly("what's the capital of France"))
}

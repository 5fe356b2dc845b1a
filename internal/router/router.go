// Package router classifies raw utterance text into a handling lane.
// Classification is pure and side-effect-free: a data-driven table of
// independent predicates evaluated in fixed priority order, so new lanes can
// be added without touching dispatch logic.
package router

import (
	"regexp"
	"strings"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
)

// Lane is the handling path selected for a turn.
type Lane string

const (
	LaneShutdown     Lane = "shutdown"
	LaneMediaControl Lane = "media_control"
	LaneWorkflow     Lane = "workflow_build"
	LaneMemoryUpdate Lane = "memory_update"
	LaneChat         Lane = "chat"
)

// classifier pairs a lane with its predicate. Order in the table is the
// priority order; ties resolve to the earlier entry, never to specificity.
type classifier struct {
	lane  Lane
	match func(text string) bool
}

var (
	shutdownPhrases = []string{
		"shut down", "shutdown", "power off", "go to sleep nova", "goodbye nova",
	}

	mediaKeywords = regexp.MustCompile(`\b(play|pause|resume|skip|next|previous|prev|track|song|music|volume|spotify|playlist|album|mute|unmute|seek)\b`)

	buildVerbs      = regexp.MustCompile(`\b(build|create|set ?up|make|generate|deploy)\b`)
	automationNouns = regexp.MustCompile(`\b(workflow|mission|automation|pipeline|schedule|notification|reminder)\b`)

	// questionPhrasing marks reminder/scheduling questions, e.g. "do I have
	// a reminder tomorrow" - these must not trigger the builder even when a
	// creation verb sneaks in ("did you make that reminder?").
	questionPhrasing = regexp.MustCompile(`\b(do i have|is there|when is|what time|did you|have you|any)\b`)

	memoryUpdate = regexp.MustCompile(`\b(update your memory|remember (that|this|me)|don't forget|add to your memory|note that)\b`)
)

var table = []classifier{
	{LaneShutdown, isShutdown},
	{LaneMediaControl, isMediaControl},
	{LaneWorkflow, isWorkflowBuild},
	{LaneMemoryUpdate, isMemoryUpdate},
}

// Classify returns the lane for the given text. Defaults to LaneChat.
func Classify(text string) Lane {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, c := range table {
		if c.match(normalized) {
			logging.Routing("classified lane=%s", c.lane)
			return c.lane
		}
	}
	logging.RoutingDebug("classified lane=%s (default)", LaneChat)
	return LaneChat
}

func isShutdown(text string) bool {
	for _, phrase := range shutdownPhrases {
		if text == phrase {
			return true
		}
	}
	return false
}

func isMediaControl(text string) bool {
	return mediaKeywords.MatchString(text)
}

// isWorkflowBuild requires BOTH a creation verb and a scheduling/automation
// noun; casual scheduling questions are excluded via the confirm-only
// sibling classifier.
func isWorkflowBuild(text string) bool {
	if !buildVerbs.MatchString(text) || !automationNouns.MatchString(text) {
		return false
	}
	return !questionPhrasing.MatchString(text)
}

func isMemoryUpdate(text string) bool {
	return memoryUpdate.MatchString(text)
}

// IsConfirmOnly reports whether the text is reminder/scheduling phrasing
// without build intent. Exposed for the workflow handler, which answers
// these directly instead of submitting a build.
func IsConfirmOnly(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return automationNouns.MatchString(normalized) && questionPhrasing.MatchString(normalized)
}

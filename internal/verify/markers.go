// Package verify implements the bounded verification loop that wraps a
// task's execution. Backend output is scanned for sentinel markers; a
// small state machine decides whether the task is done, needs another
// stage, needs another iteration, or has exhausted its budget.
package verify

import (
	"regexp"
	"strings"
)

// Sentinel payloads emitted by prompts inside <verification> blocks.
const (
	// MarkerSpecComplete signals first-stage (spec) success.
	MarkerSpecComplete = "SPEC_COMPLETE"
	// MarkerQualityComplete signals second-stage (quality) success.
	MarkerQualityComplete = "QUALITY_COMPLETE"
	// MarkerLegacyComplete is the single-stage marker used by older
	// prompts; accepted as an alias for MarkerSpecComplete.
	MarkerLegacyComplete = "VERIFICATION_COMPLETE"
	// retryPrefix precedes a free-text reason for another iteration.
	retryPrefix = "NEEDS_RETRY:"
)

var verificationBlock = regexp.MustCompile(`(?s)<verification>(.*?)</verification>`)

// markers extracts the trimmed payload of every verification block, in order.
func markers(output string) []string {
	var found []string
	for _, m := range verificationBlock.FindAllStringSubmatch(output, -1) {
		found = append(found, strings.TrimSpace(m[1]))
	}
	return found
}

// scan summarizes the verification blocks in one iteration's output.
// The state machine decides which facts matter for the current stage.
type scan struct {
	// specDone is true if a spec-success marker appears.
	specDone bool
	// qualityDone is true if a quality-success marker appears.
	qualityDone bool
	// retry is true if the last marker was a retry request.
	retry bool
	// retryReason is the reason on the last retry marker, if any.
	retryReason string
}

// scanOutput inspects one iteration's output. Markers are evaluated in
// order and a later success marker overrides an earlier retry request.
func scanOutput(output string) scan {
	var s scan
	for _, payload := range markers(output) {
		switch {
		case payload == MarkerSpecComplete || payload == MarkerLegacyComplete:
			s.specDone = true
			s.retry = false
		case payload == MarkerQualityComplete:
			s.qualityDone = true
			s.retry = false
		case strings.HasPrefix(payload, retryPrefix):
			s.retry = true
			s.retryReason = strings.TrimSpace(strings.TrimPrefix(payload, retryPrefix))
		}
	}
	return s
}

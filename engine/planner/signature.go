package planner

import "strings"

const (
	sigHistory      = 10
	sigRepeatStuck  = 3
	sigMaxActions   = 5
	sigNoActions    = "no_actions"
	stuckLoopPrefix = "⚠️ **STUCK LOOP DETECTED**: "
)

// signatureRing tracks recent action signatures to catch the agent
// repeating itself or idling indefinitely.
type signatureRing struct {
	sigs []string
}

// actionSignature is at most the first five tool[:path] tokens joined by
// "|"; path-bearing tools include the path so repeated writes to the same
// file are caught.
func actionSignature(plan *Plan) string {
	if !plan.HasActions() {
		return sigNoActions
	}
	parts := make([]string, 0, sigMaxActions)
	for i := range plan.Actions {
		if i == sigMaxActions {
			break
		}
		action := &plan.Actions[i]
		if path := action.Path(); path != "" {
			parts = append(parts, action.Tool+":"+path)
			continue
		}
		parts = append(parts, action.Tool)
	}
	return strings.Join(parts, "|")
}

func (r *signatureRing) track(sig string) {
	r.sigs = append(r.sigs, sig)
	if len(r.sigs) > sigHistory {
		r.sigs = r.sigs[1:]
	}
}

// warning returns the loop-detection message for the next iteration
// context, or empty when the recent history looks healthy.
func (r *signatureRing) warning() string {
	if len(r.sigs) >= sigRepeatStuck {
		recent := r.sigs[len(r.sigs)-sigRepeatStuck:]
		if recent[0] != sigNoActions && allEqual(recent) {
			return stuckLoopPrefix +
				"You have produced the same action pattern (" + recent[0] + ") for the last " +
				"3 iterations. You are stuck in a loop. STOP doing the same thing and try a " +
				"completely different approach: check whether the files you keep writing already " +
				"exist, update your goals to reflect what is actually done, or set a long sleep " +
				"and wait for creator guidance."
		}
	}
	window := r.sigs
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	var idle int
	for _, sig := range window {
		if sig == sigNoActions {
			idle++
		}
	}
	if idle >= 4 {
		return "You've had no actions for 4+ iterations in a row. Don't just sleep: you have " +
			"free models available. Find something productive, improve your code, write skills, " +
			"or work on your goals. If you genuinely have no goals, create some."
	}
	return ""
}

func allEqual(sigs []string) bool {
	for _, sig := range sigs[1:] {
		if sig != sigs[0] {
			return false
		}
	}
	return true
}

package script

import "github.com/bobarin/adforge/internal/models"

// Beat labels in narrative order.
const (
	BeatHook     = "HOOK"
	BeatProblem  = "PROBLEM"
	BeatSolution = "SOLUTION"
	BeatBenefit  = "BENEFIT"
	BeatCTA      = "CTA"
)

// beatPlans selects the beats used for a run. Short ads drop the problem and
// benefit beats first.
var beatPlans = []struct {
	maxLength int
	beats     []string
}{
	{maxLength: 15, beats: []string{BeatHook, BeatSolution, BeatCTA}},
	{maxLength: 30, beats: []string{BeatHook, BeatProblem, BeatSolution, BeatCTA}},
	{maxLength: models.MaxTargetLength, beats: []string{BeatHook, BeatProblem, BeatSolution, BeatBenefit, BeatCTA}},
}

// phrases holds one template per beat and tone. %s is replaced by the product
// focus taken from the brief.
var phrases = map[models.Tone]map[string]string{
	models.ToneConfident: {
		BeatHook:     "Meet %s. Built to win.",
		BeatProblem:  "Tired of tools that are slow and costly?",
		BeatSolution: "%s delivers results you can measure.",
		BeatBenefit:  "Reliable, proven, and ready for scale.",
		BeatCTA:      "Get %s and lead the way.",
	},
	models.ToneFriendly: {
		BeatHook:     "Hey there, say hello to %s.",
		BeatProblem:  "Tired of boring routines that drag on?",
		BeatSolution: "%s makes every day a little easier.",
		BeatBenefit:  "Simple, helpful, and made for you.",
		BeatCTA:      "Try %s with us.",
	},
	models.TonePlayful: {
		BeatHook:     "Plot twist: %s is here.",
		BeatProblem:  "Boring ads? Slow mornings? We feel you.",
		BeatSolution: "%s turns the ordinary into a party.",
		BeatBenefit:  "Bold, bright, and a little bit wild.",
		BeatCTA:      "Start the fun with %s.",
	},
	models.ToneUrgent: {
		BeatHook:     "Stop scrolling. %s is live now.",
		BeatProblem:  "Every day you wait is slow and costly.",
		BeatSolution: "%s works instantly, from the first minute.",
		BeatBenefit:  "Limited spots, fast results.",
		BeatCTA:      "Get %s today. Hurry.",
	},
	models.ToneLuxury: {
		BeatHook:     "Introducing %s.",
		BeatProblem:  "Ordinary has grown tired.",
		BeatSolution: "%s, crafted without compromise.",
		BeatBenefit:  "Refined detail in every moment.",
		BeatCTA:      "Discover %s.",
	},
	models.ToneInformative: {
		BeatHook:     "Here is what %s does.",
		BeatProblem:  "Most options are costly, slow, or hard to use.",
		BeatSolution: "%s handles the work in a few simple steps.",
		BeatBenefit:  "Clear pricing, quick setup, dependable output.",
		BeatCTA:      "Learn more and try %s.",
	},
}

// beatsFor returns the beat labels for a target length in seconds.
func beatsFor(targetLength int) []string {
	for _, plan := range beatPlans {
		if targetLength <= plan.maxLength {
			return plan.beats
		}
	}
	return beatPlans[len(beatPlans)-1].beats
}

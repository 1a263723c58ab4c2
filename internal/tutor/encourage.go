package tutor

import (
	"math/rand/v2"
)

// BoredomLabel is the caption of the encouragement control.
const BoredomLabel = "Bored? Press me"

var encouragements = []string{
	"Just a little longer! A good answer is on its way 🤔",
	"Thinking needs time too! Hang on a moment ⏰",
	"How about a deep breath while you wait? 😌",
	"Working hard on a good answer! 💭",
	"Waiting will pay off soon! ✨",
	"Hold on! Thinking slowly matters too 🧠",
	"Just a bit more! You're almost there 🚀",
	"Try to be patient! 😊",
}

// Encouragements returns the messages shown when the learner presses the
// boredom control.
func Encouragements() []string {
	out := make([]string, len(encouragements))
	copy(out, encouragements)
	return out
}

// RandomEncouragement picks one message. A nil r uses the global source.
func RandomEncouragement(r *rand.Rand) string {
	if r == nil {
		return encouragements[rand.IntN(len(encouragements))]
	}
	return encouragements[r.IntN(len(encouragements))]
}

var thinkingInstructions = []string{
	"Take a moment to reflect on the AI's response",
	"What questions come to your mind?",
	"How can you build upon this information?",
	"Consider different perspectives",
}

// ThinkingInstruction returns the reflection prompt shown while the thinking
// delay counts down. The prompt changes every two seconds.
func ThinkingInstruction(remaining int) string {
	if remaining < 1 {
		remaining = 1
	}
	return thinkingInstructions[((remaining-1)/2)%len(thinkingInstructions)]
}

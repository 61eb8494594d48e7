// Package dialogue turns a raw two-speaker brief script into ordered,
// budget-respecting synthesis batches.
package dialogue

// Speaker identifies one of the two fixed dialogue roles.
type Speaker string

const (
	SpeakerA Speaker = "A"
	SpeakerB Speaker = "B"
)

// Turn is one labeled utterance by a single speaker. Order is significant
// and preserved end-to-end through batching and synthesis.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Line pairs the text of one turn with the voice that should speak it.
type Line struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// Batch is an ordered, non-empty group of consecutive turns submitted to the
// synthesis provider in a single call. A batch never contains a partial turn.
type Batch struct {
	Index int
	Lines []Line
}

// CharLen returns the combined character length of all lines in the batch.
func (b Batch) CharLen() int {
	total := 0
	for _, l := range b.Lines {
		total += len([]rune(l.Text))
	}
	return total
}

// VoicePair maps the two dialogue roles onto provider voice ids.
type VoicePair struct {
	VoiceA string `yaml:"voice_a"`
	VoiceB string `yaml:"voice_b"`
}

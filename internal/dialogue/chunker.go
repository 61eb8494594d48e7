package dialogue

// BuildBatches greedily groups consecutive turns into batches whose combined
// character length stays within budget. A turn is never split across two
// batches; a single turn longer than the budget becomes its own oversized
// singleton batch rather than being truncated or dropped.
func BuildBatches(turns []Turn, budget int, voices VoicePair) []Batch {
	var batches []Batch
	var current []Line
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{Index: len(batches), Lines: current})
		current = nil
		currentLen = 0
	}

	for _, turn := range turns {
		line := Line{Text: turn.Text, VoiceID: voices.voiceFor(turn.Speaker)}
		turnLen := len([]rune(turn.Text))
		if currentLen > 0 && currentLen+turnLen > budget {
			flush()
		}
		current = append(current, line)
		currentLen += turnLen
	}
	flush()

	return batches
}

func (v VoicePair) voiceFor(s Speaker) string {
	if s == SpeakerB {
		return v.VoiceB
	}
	return v.VoiceA
}

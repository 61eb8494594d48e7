package dialogue

import (
	"errors"
	"strings"
)

// ErrNoTurns is returned when a script is empty or contains no line with a
// recognized speaker prefix.
var ErrNoTurns = errors.New("script contains no recognizable dialogue turns")

// Parse converts a raw script into its ordered sequence of turns. The script
// convention is one turn per line, prefixed with "A:" or "B:". Blank lines are
// skipped. Lines without a recognized speaker prefix are dropped: the upstream
// writer emits strictly labeled lines, so an unlabeled line is formatting
// noise rather than dialogue.
func Parse(script string) ([]Turn, error) {
	var turns []Turn
	for _, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		speaker, text, ok := splitSpeaker(line)
		if !ok || text == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text})
	}
	if len(turns) == 0 {
		return nil, ErrNoTurns
	}
	return turns, nil
}

func splitSpeaker(line string) (Speaker, string, bool) {
	switch {
	case strings.HasPrefix(line, "A:"):
		return SpeakerA, strings.TrimSpace(line[2:]), true
	case strings.HasPrefix(line, "B:"):
		return SpeakerB, strings.TrimSpace(line[2:]), true
	default:
		return "", "", false
	}
}

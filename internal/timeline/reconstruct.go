package timeline

import "fmt"

// ProgressSteps names the run phases the progress affordance displays, in
// execution order. Historical turns always show the final step.
var ProgressSteps = [...]string{
	"Routing question",
	"Planning research",
	"Reading documentation",
	"Writing answer",
}

// FinalProgressStep is the index of the completed phase.
const FinalProgressStep = len(ProgressSteps) - 1

// Reconstruct maps a stored thread snapshot into a renderable timeline.
// It is deterministic up to the freshly generated ids of synthetic entries:
// the same snapshot always yields element-wise equal timelines.
//
// Walk rules, applied to raw messages in original order:
//
//   - types outside {human, ai} are dropped, silently;
//   - every human turn is followed immediately by a completed progress
//     marker, so historical exchanges render a finished progress affordance;
//   - the terminal assistant entry of each exchange (the last ai entry
//     before the next human or the end of the log) is preceded by the
//     markers whose source data exists: router, then selected documents,
//     then always the answer header;
//   - non-terminal assistant entries pass through bare.
//
// A snapshot with a nil message log fails with ErrMalformedSnapshot. A log
// with no recognized types yields an empty timeline and no error.
func Reconstruct(snap Snapshot) ([]Message, error) {
	if snap.Messages == nil {
		return nil, fmt.Errorf("%w: messages field is missing", ErrMalformedSnapshot)
	}

	kept := make([]RawMessage, 0, len(snap.Messages))
	for _, rm := range snap.Messages {
		if rm.Type == TypeHuman || rm.Type == TypeAI {
			kept = append(kept, rm)
		}
	}

	out := make([]Message, 0, len(kept)*2)
	for i, rm := range kept {
		switch rm.Type {
		case TypeHuman:
			out = append(out,
				HumanWithID(rm.ID, rm.Content),
				NewMarker(MarkerProgress, ProgressPayload{Step: FinalProgressStep}),
			)
		case TypeAI:
			if terminal(kept, i) {
				if snap.Router != nil {
					out = append(out, NewMarker(MarkerRouter, *snap.Router))
				}
				if len(snap.Documents) > 0 {
					out = append(out, NewMarker(MarkerSelectedDocuments, DocumentsPayload{Documents: snap.Documents}))
				}
				out = append(out, NewMarker(MarkerAnswerHeader, nil))
			}
			out = append(out, AssistantWithID(rm.ID, rm.Content))
		}
	}
	return out, nil
}

// terminal reports whether kept[i] closes its exchange: no further ai entry
// occurs before the next human entry or the end of the log.
func terminal(kept []RawMessage, i int) bool {
	for j := i + 1; j < len(kept); j++ {
		switch kept[j].Type {
		case TypeHuman:
			return true
		case TypeAI:
			return false
		}
	}
	return true
}

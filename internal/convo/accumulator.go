// Package convo rebuilds coherent conversation state from the normalized
// event stream: message text accumulation, tool-call lifecycle, interrupt
// decisions, summarization annotations and running statistics.
//
// State is an explicit per-session accumulator object keyed by message and
// tool-call ids, so what resets between turns versus what persists for the
// session is unambiguous.
package convo

// TextAccumulator grows one display string per message id.
//
// The upstream may deliver either true deltas or full snapshots depending on
// its streaming configuration, without a chunk-kind flag. Disambiguation:
//
//	no prior text          → chunk adopted verbatim
//	chunk == prior         → duplicate, no-op
//	chunk startsWith prior → full replacement (adopt chunk, do not append)
//	otherwise              → true delta, append
type TextAccumulator struct {
	texts map[string]string
}

// NewTextAccumulator creates an empty accumulator.
func NewTextAccumulator() *TextAccumulator {
	return &TextAccumulator{texts: map[string]string{}}
}

// Append feeds one chunk for a message id. Returns the accumulated full text
// and whether it changed (callers skip view updates on false).
func (a *TextAccumulator) Append(messageID, chunk string) (string, bool) {
	prior, ok := a.texts[messageID]
	if !ok || prior == "" {
		if chunk == "" {
			return prior, false
		}
		a.texts[messageID] = chunk
		return chunk, true
	}
	if chunk == prior {
		return prior, false
	}
	if len(chunk) > len(prior) && chunk[:len(prior)] == prior {
		a.texts[messageID] = chunk
		return chunk, true
	}
	if chunk == "" {
		return prior, false
	}
	next := prior + chunk
	a.texts[messageID] = next
	return next, true
}

// Get returns the accumulated text for a message id.
func (a *TextAccumulator) Get(messageID string) string {
	return a.texts[messageID]
}

// Reset drops all accumulated state (scenario switch).
func (a *TextAccumulator) Reset() {
	a.texts = map[string]string{}
}

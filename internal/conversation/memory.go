package conversation

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
)

// contentKeyLength bounds how much of a message's content participates in
// word-overlap deduplication, so very long messages don't dominate the
// comparison.
const contentKeyLength = 200

// Selector invokes an LLM "selector facet" to pick relevant message ids
// out of a scored candidate list. Implemented by internal/llm against a
// derived Person whose system prompt switches the model into memory
// selection mode.
type Selector interface {
	SelectMemories(ctx context.Context, person domain.PersonID, candidates []domain.Message, taskPreview, criteria string, atMost int) ([]domain.MessageID, error)
}

// SelectMemories resolves the list of messages a PersonJob node should see
// this invocation, given its memorize_to criterion.
//
//   - empty criterion: the default view (every message naming person),
//     handled by the caller before reaching this function.
//   - "GOLDFISH": returns no messages; the caller clears person's history
//     from the log after the node completes.
//   - anything else: filter, deduplicate, score, and ask selector to pick
//     from the top-scoring candidates.
//
// A nil selector returns the ignore-filtered candidate list (capped at
// atMost). A selector failure returns that same ignore-filtered list
// together with a MemorySelectionError, so the caller can log the error and
// still run with the default view.
func SelectMemories(
	ctx context.Context,
	candidates []domain.Message,
	taskPreview string,
	criteria string,
	ignorePerson string,
	atMost int,
	personID domain.PersonID,
	selector Selector,
	cfg config.MemoryConfig,
) ([]domain.Message, error) {
	if strings.TrimSpace(strings.ToUpper(criteria)) == "GOLDFISH" {
		return nil, nil
	}

	filtered := filterMessages(candidates, ignorePerson)

	if selector == nil {
		if atMost > 0 && atMost < len(filtered) {
			return filtered[:atMost], nil
		}
		return filtered, nil
	}

	unique, frequencies := deduplicate(filtered, cfg.WordOverlapThreshold)
	scored := scoreAndRank(unique, frequencies, time.Now(), cfg)

	cap := cfg.HardCap
	if cap <= 0 || cap > len(scored) {
		cap = len(scored)
	}
	topCandidates := make([]domain.Message, cap)
	for i := 0; i < cap; i++ {
		topCandidates[i] = scored[i].msg
	}

	selectedIDs, err := selector.SelectMemories(ctx, personID, topCandidates, taskPreview, criteria, atMost)
	if err != nil {
		return filtered, domainerr.NewMemorySelectionError(string(personID), "selector call failed, downgrading to default view", err)
	}

	idSet := make(map[domain.MessageID]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		idSet[id] = true
	}
	// System messages always survive selection regardless of whether the
	// selector named them; at_most then trims system-first.
	var selected []domain.Message
	for _, m := range filtered {
		if idSet[m.ID] || m.From == domain.SystemPersonID {
			selected = append(selected, m)
		}
	}
	return applyAtMostSystemFirst(selected, atMost), nil
}

// applyAtMostSystemFirst trims messages to at_most entries, unconditionally
// keeping every system message and filling any remaining slots with the
// most recent non-system messages, then restoring chronological order.
func applyAtMostSystemFirst(messages []domain.Message, atMost int) []domain.Message {
	if atMost <= 0 || atMost >= len(messages) {
		return messages
	}

	var system, rest []domain.Message
	for _, m := range messages {
		if m.From == domain.SystemPersonID {
			system = append(system, m)
			continue
		}
		rest = append(rest, m)
	}

	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Timestamp.After(rest[j].Timestamp) })

	remaining := atMost - len(system)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > len(rest) {
		remaining = len(rest)
	}
	rest = rest[:remaining]

	out := append(system, rest...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// filterMessages drops messages sent by any person named in ignorePerson (a
// comma-separated list); messages addressed to such a person are kept.
func filterMessages(messages []domain.Message, ignorePerson string) []domain.Message {
	ignored := map[string]bool{}
	for _, p := range strings.Split(ignorePerson, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ignored[p] = true
		}
	}

	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if ignored[string(m.From)] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// deduplicate collapses messages whose leading content overlaps above the
// configured word-overlap threshold, accumulating a frequency count per
// surviving message.
func deduplicate(messages []domain.Message, threshold float64) ([]domain.Message, map[domain.MessageID]int) {
	var unique []domain.Message
	frequencies := map[domain.MessageID]int{}
	type seenEntry struct {
		key string
		id  domain.MessageID
	}
	var seen []seenEntry

	for _, m := range messages {
		if m.ID == "" {
			continue
		}
		key := contentKey(m.Content)

		dup := false
		for _, s := range seen {
			if wordOverlap(key, s.key, threshold) {
				frequencies[s.id]++
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, m)
			frequencies[m.ID] = 1
			seen = append(seen, seenEntry{key: key, id: m.ID})
		}
	}
	return unique, frequencies
}

func contentKey(content string) string {
	content = strings.TrimSpace(content)
	if len(content) > contentKeyLength {
		content = content[:contentKeyLength]
	}
	return content
}

func wordOverlap(a, b string, threshold float64) bool {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return a == b
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	return float64(intersection)/float64(smaller) >= threshold
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

type scoredMessage struct {
	msg   domain.Message
	score float64
}

func scoreAndRank(messages []domain.Message, frequencies map[domain.MessageID]int, now time.Time, cfg config.MemoryConfig) []scoredMessage {
	scored := make([]scoredMessage, 0, len(messages))
	for _, m := range messages {
		scored = append(scored, scoredMessage{msg: m, score: scoreMessage(m, frequencies[m.ID], now, cfg)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	return scored
}

// scoreMessage computes the composite recency/frequency score: recency
// decays exponentially with age against cfg.DecayFactor seconds, frequency
// rewards repeated near-duplicates up to 100, with a +30 bonus for
// system-authored messages.
func scoreMessage(m domain.Message, frequency int, now time.Time, cfg config.MemoryConfig) float64 {
	ageSeconds := now.Sub(m.Timestamp).Seconds()
	recency := 100 * math.Exp(-ageSeconds/cfg.DecayFactor)

	freqScore := math.Min(100, 30+20*float64(frequency-1))
	if m.From == domain.SystemPersonID {
		freqScore = math.Min(100, freqScore+30)
	}

	return recency*cfg.RecencyWeight + freqScore*cfg.FrequencyWeight
}

package conversation

import (
	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/pkg/tokens"
)

// Exchange is one answered question. History is only ever kept or dropped a
// whole exchange at a time.
type Exchange struct {
	Question string
	Answer   string
}

func (x Exchange) tokens() int {
	return tokens.Estimate(x.Question) + tokens.Estimate(x.Answer)
}

// Window is a fixed-capacity ring of the most recent exchanges. Pushing past
// capacity overwrites the oldest; pushing past the token budget evicts oldest
// exchanges until the rest fit, never going below keepRecent.
type Window struct {
	ring         []Exchange
	head         int
	size         int
	used         int
	budgetTokens int
	keepRecent   int
}

func NewWindow(capacity, budgetTokens, keepRecent int) *Window {
	if capacity < 0 {
		capacity = 0
	}
	if keepRecent < 0 {
		keepRecent = 0
	}
	return &Window{
		ring:         make([]Exchange, capacity),
		budgetTokens: budgetTokens,
		keepRecent:   keepRecent,
	}
}

func (w *Window) Push(x Exchange) {
	if len(w.ring) == 0 {
		return
	}
	if w.size == len(w.ring) {
		w.dropOldest()
	}
	w.ring[(w.head+w.size)%len(w.ring)] = x
	w.size++
	w.used += x.tokens()

	for w.size > w.keepRecent && w.used > w.budgetTokens {
		w.dropOldest()
	}
}

// Load pushes the answered exchanges found in turns, oldest first. A user
// turn without the assistant turn right after it is skipped.
func (w *Window) Load(turns []model.Turn) {
	for i := 0; i+1 < len(turns); i++ {
		if turns[i].Role != model.RoleUser || turns[i+1].Role != model.RoleAssistant {
			continue
		}
		w.Push(Exchange{Question: turns[i].Text, Answer: turns[i+1].Text})
		i++
	}
}

func (w *Window) dropOldest() {
	old := w.ring[w.head]
	w.ring[w.head] = Exchange{}
	w.head = (w.head + 1) % len(w.ring)
	w.size--
	w.used -= old.tokens()
}

func (w *Window) Len() int {
	return w.size
}

// Tokens is the estimated size of every kept exchange.
func (w *Window) Tokens() int {
	return w.used
}

// Exchanges returns the kept exchanges, oldest first.
func (w *Window) Exchanges() []Exchange {
	out := make([]Exchange, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.ring[(w.head+i)%len(w.ring)])
	}
	return out
}

func (w *Window) Messages() []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, 2*w.size)
	for _, x := range w.Exchanges() {
		out = append(out,
			ai.ChatMessage{Role: ai.RoleUser, Content: x.Question},
			ai.ChatMessage{Role: ai.RoleAssistant, Content: x.Answer},
		)
	}
	return out
}

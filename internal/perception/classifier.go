package perception

import (
	"regexp"
	"strings"

	"memchat/internal/logging"
	"memchat/internal/types"
)

// ClassifyOperation buckets a user message into READ, WRITE, or GENERAL by
// lexical matching against curated phrase families. WRITE wins over READ when
// both match: "remember what I said and update it" is a mutation. The default
// is GENERAL, which the planner treats like READ (tools available, no
// streaming shortcut).
//
// This is deliberately shallow. A classifier that runs before inference cannot
// consult the model, so it errs toward the cheaper misclassification: a WRITE
// mistaken for GENERAL still executes its tool call, just without the
// streamed acknowledgment.
func ClassifyOperation(input string) types.OperationType {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" {
		return types.OperationGeneral
	}

	// Explicit storage verbs win over everything (a "remember X, what was
	// Y?" turn is a mutation); explicit recall phrases win over the implicit
	// statement heuristic ("remind me what my password is" is a question).
	op := types.OperationGeneral
	switch {
	case matchesWritePhrase(text):
		op = types.OperationWrite
	case matchesRead(text):
		op = types.OperationRead
	case matchesWriteStatement(text):
		op = types.OperationWrite
	}
	logging.SessionDebug("classified input as %s (%d bytes)", op, len(input))
	return op
}

// Storage-intent phrases. Substring matches are intentional: "please remember
// that..." and "can you remember my..." both carry the verb.
var writePhrases = []string{
	"remember that",
	"remember my",
	"remember this",
	"remember me",
	"don't forget",
	"dont forget",
	"do not forget",
	"keep in mind",
	"keep track of",
	"make a note",
	"take a note",
	"note that",
	"note down",
	"write down",
	"jot down",
	"save this",
	"save that",
	"save my",
	"store this",
	"store that",
	"store my",
	"memorize",
	"add a memory",
	"add to memory",
	"add this to",
	"update my",
	"update the memory",
	"change my",
	"correct my",
	"forget that",
	"forget my",
	"forget about",
	"delete the memory",
	"delete my",
	"remove the memory",
	"remove my",
	"i prefer",
	"i'd prefer",
	"my preference is",
	"from now on",
}

// Self-description statements like "my name is Matt" are storage intent even
// without an explicit verb.
var writeStatementRe = regexp.MustCompile(`\bmy\s+\w+(\s+\w+)?\s+(is|are|was|were)\b`)

func matchesWritePhrase(text string) bool {
	for _, p := range writePhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func matchesWriteStatement(text string) bool {
	// Questions are never statements of fact about the speaker.
	if strings.Contains(text, "?") {
		return false
	}
	return writeStatementRe.MatchString(text)
}

// Recall-intent phrases: explicit memory interrogation.
var readPhrases = []string{
	"do you remember",
	"do you recall",
	"can you recall",
	"what do you remember",
	"what do you know about me",
	"what did i",
	"what did we",
	"what was my",
	"what is my",
	"what's my",
	"what are my",
	"who am i",
	"where did i",
	"when did i",
	"have i told you",
	"did i tell you",
	"did i mention",
	"look up",
	"search your memory",
	"search memory",
	"check your memory",
	"recall what",
	"remind me",
	"list my",
	"show my",
	"show me my",
}

// Bare interrogatives about stored subjects ("what is...", "where is...")
// only count as READ when they reference the speaker; general knowledge
// questions stay GENERAL so the model answers directly.
var readQuestionRe = regexp.MustCompile(`\b(what|which|where|when|who)\b.*\b(my|i|me)\b`)

func matchesRead(text string) bool {
	for _, p := range readPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	if !strings.Contains(text, "?") {
		return false
	}
	return readQuestionRe.MatchString(text)
}

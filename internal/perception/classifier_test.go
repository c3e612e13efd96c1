package perception

import (
	"testing"

	"memchat/internal/types"
)

func TestClassifyOperation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.OperationType
	}{
		// WRITE family
		{"remember that", "Remember that my name is Matt", types.OperationWrite},
		{"dont forget", "Don't forget I'm allergic to peanuts", types.OperationWrite},
		{"note down", "Note down that the meeting moved to 3pm", types.OperationWrite},
		{"save my", "Save my address: 12 Elm St", types.OperationWrite},
		{"statement of fact", "my favorite color is blue", types.OperationWrite},
		{"preference", "I prefer tabs over spaces", types.OperationWrite},
		{"update", "Update my phone number to 555-0100", types.OperationWrite},
		{"forget", "Forget my old email address", types.OperationWrite},
		{"keep in mind", "keep in mind that I work remotely on Fridays", types.OperationWrite},

		// READ family
		{"what is my", "What is my name?", types.OperationRead},
		{"do you remember", "Do you remember where I parked?", types.OperationRead},
		{"recall", "Can you recall what I told you yesterday?", types.OperationRead},
		{"remind me", "Remind me what my wifi password is", types.OperationRead},
		{"question about me", "Where did I say I was going?", types.OperationRead},
		{"list", "List my saved preferences", types.OperationRead},

		// WRITE wins over READ when both match
		{"write beats read", "Remember that my flight is at 9, what was my old one?", types.OperationWrite},

		// GENERAL
		{"small talk", "Hello there!", types.OperationGeneral},
		{"world knowledge", "What is the capital of France?", types.OperationGeneral},
		{"coding question", "How do I reverse a slice in Go?", types.OperationGeneral},
		{"empty", "", types.OperationGeneral},
		{"whitespace", "   \n\t ", types.OperationGeneral},
		{"question not statement", "Is my name important here?", types.OperationGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyOperation(tt.input)
			if got != tt.want {
				t.Errorf("ClassifyOperation(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestClassifyOperationCaseInsensitive(t *testing.T) {
	if got := ClassifyOperation("REMEMBER THAT I LIKE LOUD MUSIC"); got != types.OperationWrite {
		t.Errorf("uppercase input = %s, want WRITE", got)
	}
	if got := ClassifyOperation("WHAT IS MY NAME?"); got != types.OperationRead {
		t.Errorf("uppercase question = %s, want READ", got)
	}
}

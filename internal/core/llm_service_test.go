package core

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGeminiContents(t *testing.T) {
	system, history, last, err := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "what is GAAP?"},
	})
	require.NoError(t, err)

	assert.Equal(t, "persona", system)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("hello"), history[1].Parts[0])
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, genai.Text("what is GAAP?"), last.Parts[0])
}

func TestToGeminiContents_Invalid(t *testing.T) {
	_, _, _, err := toGeminiContents([]Message{{Role: RoleSystem, Content: "only system"}})
	assert.Error(t, err)

	_, _, _, err = toGeminiContents([]Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}})
	assert.Error(t, err)

	_, _, _, err = toGeminiContents([]Message{{Role: "tool", Content: "x"}})
	assert.Error(t, err)
}

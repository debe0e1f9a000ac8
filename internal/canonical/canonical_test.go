package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hello"))
	assert.Equal(t, 5, EstimateTokens("one two three four"))

	// The estimate is a pure function of the text.
	for i := 0; i < 3; i++ {
		assert.Equal(t, EstimateTokens("same input text"), EstimateTokens("same input text"))
	}
}

func TestPromptTokens(t *testing.T) {
	req := &Request{Messages: []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello there"},
	}}

	// Two messages of two words each: (2+0+3) per message.
	assert.Equal(t, 10, req.PromptTokens())

	empty := &Request{}
	assert.Equal(t, 0, empty.PromptTokens())
}

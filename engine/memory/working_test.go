package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionlabs/aion/engine/core"
)

func TestWorkingConfig(t *testing.T) {
	t.Run("Should clamp out-of-range values", func(t *testing.T) {
		w := NewWorkingMemory(WorkingConfig{
			RetrievalCount:     500,
			RelevanceThreshold: 2,
			DecayFactor:        0.1,
			MaxContextTokens:   5,
		}, EstimatorCounter{})
		cfg := w.Config()
		assert.Equal(t, 100, cfg.RetrievalCount)
		assert.InDelta(t, 1.0, cfg.RelevanceThreshold, 1e-9)
		assert.InDelta(t, 0.5, cfg.DecayFactor, 1e-9)
		assert.Equal(t, 10000, cfg.MaxContextTokens)
	})

	t.Run("Should keep current settings for zero-valued patch fields", func(t *testing.T) {
		w := NewWorkingMemory(DefaultWorkingConfig(), EstimatorCounter{})
		cfg := w.UpdateConfig(WorkingConfig{RetrievalCount: 25})
		assert.Equal(t, 25, cfg.RetrievalCount)
		assert.InDelta(t, 0.95, cfg.DecayFactor, 1e-9)
		assert.Equal(t, 120000, cfg.MaxContextTokens)
	})
}

func TestWorkingMemory_Trim(t *testing.T) {
	t.Run("Should drop oldest messages once over the token budget", func(t *testing.T) {
		w := NewWorkingMemory(WorkingConfig{MaxContextTokens: 10000}, EstimatorCounter{})
		// 12000 chars is ~3000 tokens under the chars/4 estimate.
		big := strings.Repeat("a", 12000)
		w.AddMessage(core.UserMessage("first " + big))
		w.AddMessage(core.AssistantMessage("second " + big))
		w.AddMessage(core.UserMessage("third " + big))
		w.AddMessage(core.AssistantMessage("fourth " + big))

		msgs := w.Messages()
		require.Len(t, msgs, 3)
		assert.True(t, strings.HasPrefix(msgs[0].Content, "second"))
		assert.LessOrEqual(t, w.EstimateTokens(), 10000)
	})

	t.Run("Should always keep the two most recent messages even over budget", func(t *testing.T) {
		w := NewWorkingMemory(WorkingConfig{MaxContextTokens: 10000}, EstimatorCounter{})
		huge := strings.Repeat("b", 100000)
		w.AddMessage(core.UserMessage(huge))
		w.AddMessage(core.AssistantMessage(huge))
		w.AddMessage(core.UserMessage(huge))
		assert.Len(t, w.Messages(), 2)
		assert.Greater(t, w.EstimateTokens(), 10000)
	})
}

func TestWorkingMemory_MessagesForLLM(t *testing.T) {
	t.Run("Should fold the memory block into the system message", func(t *testing.T) {
		w := NewWorkingMemory(DefaultWorkingConfig(), EstimatorCounter{})
		w.SetSystemPrompt("You are the runtime.")
		w.InjectMemories([]SearchResult{
			{Entry: Entry{Content: "creator prefers concise replies", Importance: 0.8}, Distance: 0.1},
		})
		w.AddMessage(core.UserMessage("hello"))

		msgs := w.MessagesForLLM()
		require.Len(t, msgs, 2)
		assert.Equal(t, core.RoleSystem, msgs[0].Role)
		assert.True(t, strings.HasPrefix(msgs[0].Content, "You are the runtime.\n## RELEVANT MEMORIES"))
		assert.Contains(t, msgs[0].Content, "creator prefers concise replies")
		assert.Equal(t, "hello", msgs[1].Content)
	})

	t.Run("Should filter injected memories below the relevance threshold", func(t *testing.T) {
		w := NewWorkingMemory(WorkingConfig{RelevanceThreshold: 0.5}, EstimatorCounter{})
		w.InjectMemories([]SearchResult{
			{Entry: Entry{Content: "relevant"}, Distance: 0.2},
			{Entry: Entry{Content: "irrelevant"}, Distance: 0.9},
		})
		msgs := w.MessagesForLLM()
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].Content, "relevant")
		assert.NotContains(t, msgs[0].Content, "irrelevant")
	})

	t.Run("Should omit empty sections", func(t *testing.T) {
		w := NewWorkingMemory(DefaultWorkingConfig(), EstimatorCounter{})
		w.AddMessage(core.UserMessage("only message"))
		msgs := w.MessagesForLLM()
		require.Len(t, msgs, 1)
		assert.Equal(t, "only message", msgs[0].Content)
	})
}

func TestWorkingMemory_SummarizeAndCompress(t *testing.T) {
	t.Run("Should replace all but the last two messages with a summary", func(t *testing.T) {
		w := NewWorkingMemory(DefaultWorkingConfig(), EstimatorCounter{})
		w.AddMessage(core.UserMessage("one"))
		w.AddMessage(core.AssistantMessage("two"))
		w.AddMessage(core.UserMessage("three"))
		w.AddMessage(core.AssistantMessage("four"))

		w.SummarizeAndCompress("they exchanged greetings")
		msgs := w.Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, core.RoleSystem, msgs[0].Role)
		assert.Contains(t, msgs[0].Content, "they exchanged greetings")
		assert.Equal(t, "three", msgs[1].Content)
		assert.Equal(t, "four", msgs[2].Content)
	})

	t.Run("Should be a no-op for short windows", func(t *testing.T) {
		w := NewWorkingMemory(DefaultWorkingConfig(), EstimatorCounter{})
		w.AddMessage(core.UserMessage("one"))
		w.AddMessage(core.AssistantMessage("two"))
		w.SummarizeAndCompress("summary")
		assert.Len(t, w.Messages(), 2)
	})
}

func TestTokenCounter(t *testing.T) {
	t.Run("Should estimate a quarter token per character", func(t *testing.T) {
		assert.Equal(t, 25, EstimatorCounter{}.Count(strings.Repeat("x", 100)))
	})
}

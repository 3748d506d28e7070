package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/companion/internal/profile"
	"github.com/hrygo/companion/store"
	"github.com/hrygo/companion/store/db/sqlite"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "companion_test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	return New(store.New(driver, p), NewRuleExtractor())
}

func TestProcessMessageStoresTurnAndFacts(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	result, err := m.ProcessMessage(ctx, "I love hiking. I hate rain.", true, 0.5)
	require.NoError(t, err)
	assert.Positive(t, result.MessageID)
	require.Len(t, result.ExtractedFacts, 2)

	facts := m.FactsAbout(ctx, "user")
	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.Equal(t, "user", f.Subject)
		assert.Equal(t, 0.8, f.Confidence)
		require.NotNil(t, f.Source)
		assert.Equal(t, "conversation", *f.Source)
	}
}

func TestProcessMessageAIRepliesNeverExtract(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	result, err := m.ProcessMessage(ctx, "I love helping with that!", false, 0.5)
	require.NoError(t, err)
	assert.Empty(t, result.ExtractedFacts)
	assert.Empty(t, m.FactsAbout(ctx, "user"))
}

func TestAddFactEmptySourceStoredAsNull(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	_, err := m.AddFact(ctx, ExtractedFact{
		Subject:    "user",
		Predicate:  "likes",
		Object:     "quiet",
		Confidence: 1.0,
	})
	require.NoError(t, err)

	facts := m.FactsAbout(ctx, "user")
	require.Len(t, facts, 1)
	assert.Nil(t, facts[0].Source)
}

func TestConversationContext(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	assert.Equal(t, NoContextSentinel, m.ConversationContext(ctx, 5))

	_, err := m.AddMessage(ctx, "hello", true, 0.5)
	require.NoError(t, err)
	_, err = m.AddMessage(ctx, "hi there", false, 0.5)
	require.NoError(t, err)
	_, err = m.AddMessage(ctx, "how are you", true, 0.5)
	require.NoError(t, err)

	got := m.ConversationContext(ctx, 5)
	assert.Equal(t, "User: hello\nAI: hi there\nUser: how are you", got)

	// The window keeps only the most recent turns.
	got = m.ConversationContext(ctx, 2)
	assert.Equal(t, "AI: hi there\nUser: how are you", got)
}

func TestSearchMessages(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	_, err := m.AddMessage(ctx, "tell me about hiking trails", true, 0.5)
	require.NoError(t, err)
	_, err = m.AddMessage(ctx, "the weather is nice", true, 0.5)
	require.NoError(t, err)

	found := m.SearchMessages(ctx, "hiking", 0)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Content, "hiking")
}

func TestSummaryCounts(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	_, err := m.ProcessMessage(ctx, "I like tea", true, 0.5)
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, "noted!", false, 0.5)
	require.NoError(t, err)

	summary := m.Summary(ctx)
	assert.Equal(t, int64(2), summary["message_count"])
	assert.Equal(t, int64(1), summary["user_message_count"])
	assert.Equal(t, int64(1), summary["ai_message_count"])
	assert.Equal(t, int64(1), summary["fact_count"])
}

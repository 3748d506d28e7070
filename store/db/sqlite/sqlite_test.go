package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/companion/internal/profile"
	"github.com/hrygo/companion/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "companion_test.db"),
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func ts(offset time.Duration) string {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(offset).Format(time.RFC3339)
}

func TestCreateAndListMessages(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	first, err := driver.CreateMessage(ctx, &store.Message{
		Content:    "hello there",
		IsUser:     true,
		Timestamp:  ts(0),
		Importance: 0.5,
	})
	require.NoError(t, err)
	assert.Positive(t, first.ID)

	second, err := driver.CreateMessage(ctx, &store.Message{
		Content:    "hi, how can I help?",
		IsUser:     false,
		Timestamp:  ts(time.Minute),
		Importance: 0.5,
	})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	limit := 10
	messages, err := driver.ListMessages(ctx, &store.FindMessage{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, messages, 2)

	// Newest first.
	assert.Equal(t, second.ID, messages[0].ID)
	assert.False(t, messages[0].IsUser)
	assert.Equal(t, first.ID, messages[1].ID)
	assert.True(t, messages[1].IsUser)
}

func TestListMessagesLimit(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := driver.CreateMessage(ctx, &store.Message{
			Content:    "message",
			IsUser:     i%2 == 0,
			Timestamp:  ts(time.Duration(i) * time.Second),
			Importance: 0.5,
		})
		require.NoError(t, err)
	}

	limit := 3
	messages, err := driver.ListMessages(ctx, &store.FindMessage{Limit: &limit})
	require.NoError(t, err)
	assert.Len(t, messages, 3)
}

func TestListMessagesContentQuery(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	contents := []string{"I went hiking today", "the weather was great", "hiking is fun"}
	for i, content := range contents {
		_, err := driver.CreateMessage(ctx, &store.Message{
			Content:    content,
			IsUser:     true,
			Timestamp:  ts(time.Duration(i) * time.Second),
			Importance: 0.5,
		})
		require.NoError(t, err)
	}

	query := "hiking"
	limit := 10
	messages, err := driver.ListMessages(ctx, &store.FindMessage{ContentQuery: &query, Limit: &limit})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hiking is fun", messages[0].Content)
	assert.Equal(t, "I went hiking today", messages[1].Content)
}

func TestCountMessages(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := driver.CreateMessage(ctx, &store.Message{
			Content: "user turn", IsUser: true, Timestamp: ts(time.Duration(i) * time.Second), Importance: 0.5,
		})
		require.NoError(t, err)
	}
	_, err := driver.CreateMessage(ctx, &store.Message{
		Content: "ai turn", IsUser: false, Timestamp: ts(time.Minute), Importance: 0.5,
	})
	require.NoError(t, err)

	total, err := driver.CountMessages(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)

	isUser := true
	userCount, err := driver.CountMessages(ctx, &isUser)
	require.NoError(t, err)
	assert.EqualValues(t, 3, userCount)

	isUser = false
	aiCount, err := driver.CountMessages(ctx, &isUser)
	require.NoError(t, err)
	assert.EqualValues(t, 1, aiCount)
}

func TestCreateAndListFacts(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	source := "conversation"
	_, err := driver.CreateFact(ctx, &store.Fact{
		Subject: "user", Predicate: "likes", Object: "hiking",
		Confidence: 0.8, Source: &source, Timestamp: ts(0),
	})
	require.NoError(t, err)

	_, err = driver.CreateFact(ctx, &store.Fact{
		Subject: "user", Predicate: "dislikes", Object: "mornings",
		Confidence: 1.0, Source: nil, Timestamp: ts(time.Second),
	})
	require.NoError(t, err)

	subject := "user"
	facts, err := driver.ListFacts(ctx, &store.FindFact{Subject: &subject})
	require.NoError(t, err)
	require.Len(t, facts, 2)

	// Highest confidence first.
	assert.Equal(t, "dislikes", facts[0].Predicate)
	assert.Nil(t, facts[0].Source)
	assert.Equal(t, "likes", facts[1].Predicate)
	require.NotNil(t, facts[1].Source)
	assert.Equal(t, "conversation", *facts[1].Source)

	other := "weather"
	none, err := driver.ListFacts(ctx, &store.FindFact{Subject: &other})
	require.NoError(t, err)
	assert.Empty(t, none)

	count, err := driver.CountFacts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

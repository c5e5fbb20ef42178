package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessageKeepsNewestInOrder(t *testing.T) {
	sess := NewSession("alice", "s1", time.Now())
	for i := 0; i < 35; i++ {
		sess.AppendMessage(Message{ID: fmt.Sprintf("m%d", i)})
	}

	history := sess.History()
	require.Len(t, history, MaxHistory)
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("m%d", i+15), msg.ID)
	}
}

func TestRecentHistory(t *testing.T) {
	sess := NewSession("alice", "s1", time.Now())
	for i := 0; i < 4; i++ {
		sess.AppendMessage(Message{ID: fmt.Sprintf("m%d", i)})
	}

	recent := sess.RecentHistory(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "m2", recent[0].ID)
	assert.Equal(t, "m3", recent[1].ID)
	assert.Len(t, sess.RecentHistory(10), 4)
}

func TestTouchIsMonotonic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := NewSession("alice", "s1", base)

	sess.Touch(base.Add(time.Minute))
	sess.Touch(base.Add(30 * time.Second))
	assert.Equal(t, base.Add(time.Minute), sess.LastActivity())
}

func TestMergeContext(t *testing.T) {
	sess := NewSession("alice", "s1", time.Now())
	sad := "sad"
	sess.MergeContext(&ConversationContext{
		CurrentMood:     &sad,
		RecentMemories:  []Memory{{UserText: "rainy day"}},
		UserPreferences: map[string]interface{}{"tone": "gentle"},
	})
	// A later payload without mood or memories keeps the earlier values.
	sess.MergeContext(&ConversationContext{UserPreferences: map[string]interface{}{"lang": "en"}})
	sess.MergeContext(nil)

	ctx := sess.Context()
	assert.Equal(t, "sad", ctx.Mood())
	assert.Equal(t, []Memory{{UserText: "rainy day"}}, ctx.RecentMemories)
	assert.Equal(t, map[string]interface{}{"tone": "gentle", "lang": "en"}, ctx.UserPreferences)
}

func TestContextIsACopy(t *testing.T) {
	sess := NewSession("alice", "s1", time.Now())
	sess.MergeContext(&ConversationContext{RecentMemories: []Memory{{UserText: "a"}}})

	ctx := sess.Context()
	ctx.RecentMemories[0].UserText = "changed"
	ctx.UserPreferences["x"] = 1

	again := sess.Context()
	assert.Equal(t, "a", again.RecentMemories[0].UserText)
	assert.NotContains(t, again.UserPreferences, "x")
}

package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/domain"
)

type stubSelector struct {
	ids []domain.MessageID
	err error
}

func (s stubSelector) SelectMemories(ctx context.Context, person domain.PersonID, candidates []domain.Message, taskPreview, criteria string, atMost int) ([]domain.MessageID, error) {
	return s.ids, s.err
}

func defaultMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		HardCap:              10,
		DecayFactor:          3600,
		WordOverlapThreshold: 0.8,
		RecencyWeight:        0.5,
		FrequencyWeight:      0.5,
	}
}

func TestSelectMemories_ShouldReturnNil_WhenCriteriaIsGoldfish(t *testing.T) {
	msgs, err := SelectMemories(context.Background(), nil, "", "goldfish", "", 0, "analyst", nil, defaultMemoryConfig())
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestSelectMemories_ShouldFilterOutIgnoredSenders_WhenSelectorIsNil(t *testing.T) {
	candidates := []domain.Message{
		{ID: "m1", From: "analyst"},
		{ID: "m2", From: "analyst.__selector"},
	}
	msgs, err := SelectMemories(context.Background(), candidates, "", "", "analyst.__selector", 0, "analyst", nil, defaultMemoryConfig())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageID("m1"), msgs[0].ID)
}

func TestSelectMemories_ShouldCapAtMost_WhenSelectorIsNil(t *testing.T) {
	candidates := []domain.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}
	msgs, err := SelectMemories(context.Background(), candidates, "", "", "", 2, "analyst", nil, defaultMemoryConfig())
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSelectMemories_ShouldReturnOnlySelectorChosenMessages_WhenSelectorSucceeds(t *testing.T) {
	candidates := []domain.Message{
		{ID: "m1", Content: "alpha", Timestamp: time.Now()},
		{ID: "m2", Content: "beta", Timestamp: time.Now()},
	}
	selector := stubSelector{ids: []domain.MessageID{"m2"}}

	msgs, err := SelectMemories(context.Background(), candidates, "task", "relevant", "", 0, "analyst", selector, defaultMemoryConfig())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageID("m2"), msgs[0].ID)
}

func TestSelectMemories_ShouldDowngradeToFilteredList_WhenSelectorFails(t *testing.T) {
	candidates := []domain.Message{
		{ID: "m1", Content: "alpha", Timestamp: time.Now()},
	}
	selector := stubSelector{err: errors.New("facet unreachable")}

	msgs, err := SelectMemories(context.Background(), candidates, "task", "relevant", "", 0, "analyst", selector, defaultMemoryConfig())
	require.Error(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageID("m1"), msgs[0].ID)
}

func TestSelectMemories_ShouldPreserveSystemMessages_EvenWhenSelectorOmitsThem(t *testing.T) {
	now := time.Now()
	candidates := []domain.Message{
		{ID: "sys1", From: domain.SystemPersonID, Content: "system setup", Timestamp: now.Add(-time.Hour)},
		{ID: "m1", Content: "alpha", Timestamp: now.Add(-time.Minute)},
		{ID: "m2", Content: "beta", Timestamp: now},
	}
	selector := stubSelector{ids: []domain.MessageID{"m2"}}

	msgs, err := SelectMemories(context.Background(), candidates, "task", "relevant", "", 0, "analyst", selector, defaultMemoryConfig())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageID("sys1"), msgs[0].ID)
	assert.Equal(t, domain.MessageID("m2"), msgs[1].ID)
}

func TestSelectMemories_ShouldTrimAtMostSystemFirst_KeepingMostRecentNonSystem(t *testing.T) {
	now := time.Now()
	candidates := []domain.Message{
		{ID: "sys1", From: domain.SystemPersonID, Content: "system setup", Timestamp: now.Add(-time.Hour)},
		{ID: "m1", Content: "alpha", Timestamp: now.Add(-3 * time.Minute)},
		{ID: "m2", Content: "beta", Timestamp: now.Add(-2 * time.Minute)},
		{ID: "m3", Content: "gamma", Timestamp: now.Add(-time.Minute)},
	}
	selector := stubSelector{ids: []domain.MessageID{"m1", "m2", "m3"}}

	msgs, err := SelectMemories(context.Background(), candidates, "task", "relevant", "", 2, "analyst", selector, defaultMemoryConfig())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageID("sys1"), msgs[0].ID)
	assert.Equal(t, domain.MessageID("m3"), msgs[1].ID)
}

func TestDeduplicate_ShouldCollapseNearDuplicateContent(t *testing.T) {
	messages := []domain.Message{
		{ID: "m1", Content: "the quick brown fox jumps"},
		{ID: "m2", Content: "the quick brown fox leaps"},
	}
	unique, freq := deduplicate(messages, 0.5)
	require.Len(t, unique, 1)
	assert.Equal(t, 2, freq["m1"])
}

func TestScoreMessage_ShouldFavorRecentMessages(t *testing.T) {
	now := time.Now()
	cfg := defaultMemoryConfig()
	recent := domain.Message{Timestamp: now}
	old := domain.Message{Timestamp: now.Add(-24 * time.Hour)}

	assert.Greater(t, scoreMessage(recent, 1, now, cfg), scoreMessage(old, 1, now, cfg))
}

func TestScoreMessage_ShouldFavorSystemMessages(t *testing.T) {
	now := time.Now()
	cfg := defaultMemoryConfig()
	systemMsg := domain.Message{From: domain.SystemPersonID, Timestamp: now}
	userMsg := domain.Message{From: "analyst", Timestamp: now}

	assert.Greater(t, scoreMessage(systemMsg, 1, now, cfg), scoreMessage(userMsg, 1, now, cfg))
}

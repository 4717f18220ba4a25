package learning

import (
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, categoryCapacity int, evictFraction float64) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "learnings"), categoryCapacity, evictFraction, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.db.Close() })
	return s
}

// addSync persists synchronously, bypassing the async write queue the
// production path uses.
func addSync(s *Store, queueType string, l Learning) Learning {
	s.Add(queueType, l)
	s.drain()
	return l
}

func TestScoreCombinesConfidenceUsageAndDecay(t *testing.T) {
	now := time.Now()

	fresh := Learning{Confidence: 0.8, CreatedAt: now}
	assert.InDelta(t, 0.8, fresh.Score(now), 1e-9)

	used := Learning{Confidence: 0.8, UseCount: 5, LastUsedAt: now}
	assert.InDelta(t, 0.8*(1+math.Log1p(5)), used.Score(now), 1e-9)

	// Two weeks old: decayed by exp(-0.05*14).
	stale := Learning{Confidence: 0.8, CreatedAt: now.Add(-14 * 24 * time.Hour)}
	assert.InDelta(t, 0.8*math.Exp(-0.05*14), stale.Score(now), 1e-6)

	// LastUsedAt takes precedence over CreatedAt as the decay reference.
	refreshed := Learning{Confidence: 0.8, CreatedAt: now.Add(-30 * 24 * time.Hour), LastUsedAt: now}
	assert.Greater(t, refreshed.Score(now), stale.Score(now))
}

func TestAddDefaultsAndClamps(t *testing.T) {
	s := openTestStore(t, 0, 0)

	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "a", Confidence: 1.7})
	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "b", Confidence: -0.3})

	all, err := s.GetRelevant("standard", "movement", 0, Filters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, l := range all {
		assert.NotEmpty(t, l.ID)
		assert.False(t, l.CreatedAt.IsZero())
		assert.Equal(t, 1, l.Version)
		assert.GreaterOrEqual(t, l.Confidence, 0.0)
		assert.LessOrEqual(t, l.Confidence, 1.0)
	}
}

func TestGetRelevantRanksAndFilters(t *testing.T) {
	s := openTestStore(t, 0, 0)

	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "low", Confidence: 0.2})
	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeAntiAction, Content: "high", Confidence: 0.9})
	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "mid", Confidence: 0.5})
	addSync(s, "standard", Learning{Category: "crafting", LearningType: TypeActionLearning, Content: "other category", Confidence: 0.9})
	addSync(s, "emergency", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "other queue", Confidence: 0.9})

	ranked, err := s.GetRelevant("standard", "movement", 2, Filters{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].Content)
	assert.Equal(t, "mid", ranked[1].Content)

	typed, err := s.GetRelevant("standard", "movement", 0, Filters{LearningType: TypeAntiAction})
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, "high", typed[0].Content)

	confident, err := s.GetRelevant("standard", "movement", 0, Filters{MinConfidence: 0.4})
	require.NoError(t, err)
	assert.Len(t, confident, 2)
}

func TestGetRelevantBumpsUsage(t *testing.T) {
	s := openTestStore(t, 0, 0)
	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "x", Confidence: 0.5})

	first, err := s.GetRelevant("standard", "movement", 1, Filters{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].UseCount)

	second, err := s.GetRelevant("standard", "movement", 1, Filters{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].UseCount)
	assert.False(t, second[0].LastUsedAt.IsZero())
}

func TestGetTopSpansQueuesAndCategories(t *testing.T) {
	s := openTestStore(t, 0, 0)

	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeAntiAction, Content: "one", Confidence: 0.9})
	addSync(s, "emergency", Learning{Category: "survival", LearningType: TypeAntiAction, Content: "two", Confidence: 0.7})
	addSync(s, "standard", Learning{Category: "crafting", LearningType: TypeActionLearning, Content: "not this type", Confidence: 0.9})

	top, err := s.GetTop(TypeAntiAction, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "one", top[0].Content)
	assert.Equal(t, "two", top[1].Content)
}

func TestSaveAndLoadLocation(t *testing.T) {
	s := openTestStore(t, 0, 0)

	s.SaveLocation("respawn", "base", 100, 64, -200)
	s.drain()

	x, y, z, ok := s.LoadLocation("respawn", "base")
	require.True(t, ok)
	assert.Equal(t, 100, x)
	assert.Equal(t, 64, y)
	assert.Equal(t, -200, z)

	// Saving again replaces the previous fact instead of accumulating.
	s.SaveLocation("respawn", "base", 1, 2, 3)
	s.drain()

	x, y, z, ok = s.LoadLocation("respawn", "base")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, []int{x, y, z})

	all, err := s.GetRelevant("respawn", "movement", 0, Filters{})
	require.NoError(t, err)
	count := 0
	for _, l := range all {
		if l.Content == "base" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, _, _, ok = s.LoadLocation("respawn", "nowhere")
	assert.False(t, ok)
}

func TestPruneCategoryEvictsLowestScoring(t *testing.T) {
	s := openTestStore(t, 10, 0.2)

	for i := 0; i < 10; i++ {
		conf := 0.1 + float64(i)*0.05
		addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning,
			Content: "fact", Confidence: conf})
	}

	// The 11th insert crosses capacity and evicts the lowest-scoring 20%.
	addSync(s, "standard", Learning{Category: "movement", LearningType: TypeActionLearning,
		Content: "fact", Confidence: 0.9})

	all, err := s.GetRelevant("standard", "movement", 0, Filters{})
	require.NoError(t, err)
	assert.Equal(t, 9, len(all))

	// The strongest fact survived.
	assert.InDelta(t, 0.9, all[0].Confidence, 0.01)
}

func TestAddDropsWhenQueueFull(t *testing.T) {
	s := openTestStore(t, 0, 0)

	// Fill the async queue without draining; the overflow add must not block.
	for i := 0; i < 300; i++ {
		s.Add("standard", Learning{Category: "movement", LearningType: TypeActionLearning, Content: "x", Confidence: 0.5})
	}
}

// Package learning persists what the agent learned from plan successes and
// failures. Backed by LevelDB with prefix-scan indexes; writes are async and
// best-effort so the execution hot path never blocks on disk.
//
// Key scheme ("|" separator, parts sanitized):
//
//	l|<id>                          → Learning JSON (primary record)
//	q|<queue>|<category>|<id>       → nil           (queue+category index)
//	t|<learningType>|<id>           → nil           (type index)
package learning

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	prefixLearning = "l|"
	prefixQueueIdx = "q|"
	prefixTypeIdx  = "t|"
)

// Recency decay constant: ~14 day half-life.
const decayK = 0.05

// LearningType distinguishes how a learning is applied.
type LearningType string

const (
	TypeActionLearning LearningType = "actionLearning"
	TypeAntiAction     LearningType = "antiAction"
	TypeStrategic      LearningType = "strategic"
)

// Plan-level categories. Action-level learnings carry the category of their
// action (movement, block_interaction, crafting, survival, combat,
// inventory); facts about whole plans and missions use these two.
const (
	CategoryPlanning = "planning" // plan shape and validation feedback
	CategoryStrategy = "strategy" // mission strategy outcomes
)

// Learning is one recorded fact.
type Learning struct {
	ID           string         `json:"id"`
	QueueType    string         `json:"queueType"`
	Category     string         `json:"category"`
	LearningType LearningType   `json:"learningType"`
	Content      string         `json:"content"`
	Confidence   float64        `json:"confidence"`
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastUsedAt   time.Time      `json:"lastUsedAt"`
	UseCount     int            `json:"useCount"`
	Version      int            `json:"version"`
}

// Score ranks a learning: confidence × usage × recency decay.
func (l Learning) Score(now time.Time) float64 {
	ref := l.LastUsedAt
	if ref.IsZero() {
		ref = l.CreatedAt
	}
	days := now.Sub(ref).Hours() / 24.0
	usage := 1.0 + math.Log1p(float64(l.UseCount))
	return l.Confidence * usage * math.Exp(-decayK*days)
}

// Filters narrows GetRelevant results.
type Filters struct {
	LearningType  LearningType
	MinConfidence float64
}

// Store is the LevelDB-backed learning repository.
type Store struct {
	db      *leveldb.DB
	logger  *slog.Logger
	writeCh chan Learning

	categoryCapacity int
	evictFraction    float64
}

func Open(dbPath string, categoryCapacity int, evictFraction float64, logger *slog.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:               db,
		logger:           logger,
		writeCh:          make(chan Learning, 256),
		categoryCapacity: categoryCapacity,
		evictFraction:    evictFraction,
	}, nil
}

// Run drains the async write queue until ctx is cancelled, then flushes
// pending writes and closes the database.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			if err := s.db.Close(); err != nil {
				s.logger.Warn("Learning DB close failed", slog.String("error", err.Error()))
			}
			return nil
		case l := <-s.writeCh:
			s.persist(l)
		}
	}
}

// Add enqueues a learning for async persistence. Non-blocking: drops with a
// warning when the queue is full. Failures to record are never propagated.
func (s *Store) Add(queueType string, l Learning) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	if l.Version == 0 {
		l.Version = 1
	}
	l.QueueType = queueType
	if l.Confidence < 0 {
		l.Confidence = 0
	}
	if l.Confidence > 1 {
		l.Confidence = 1
	}

	select {
	case s.writeCh <- l:
	default:
		s.logger.Warn("Learning write queue full, dropping learning",
			slog.String("category", l.Category), slog.String("content", l.Content))
	}
}

// GetRelevant returns up to limit learnings for the queue+category pair,
// ranked by score, honoring filters. Returned learnings get their use count
// and last-used timestamp bumped, which feeds back into future ranking.
func (s *Store) GetRelevant(queueType, category string, limit int, f Filters) ([]Learning, error) {
	prefix := queueIdxPrefix(queueType, category)
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	now := time.Now()
	var all []Learning
	for iter.Next() {
		id := strings.TrimPrefix(string(iter.Key()), prefix)
		l, err := s.fetch(id)
		if err != nil {
			continue
		}
		if f.LearningType != "" && l.LearningType != f.LearningType {
			continue
		}
		if l.Confidence < f.MinConfidence {
			continue
		}
		all = append(all, l)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Score(now) > all[j].Score(now)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	for i := range all {
		all[i].UseCount++
		all[i].LastUsedAt = now
		s.persist(all[i])
	}

	return all, nil
}

// GetSpecific returns the highest-scoring learning whose content contains
// match, or nil.
func (s *Store) GetSpecific(queueType, category, match string) (*Learning, error) {
	all, err := s.GetRelevant(queueType, category, 0, Filters{})
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.Contains(all[i].Content, match) {
			return &all[i], nil
		}
	}
	return nil, nil
}

// GetTop returns the limit highest-scoring learnings of one type across all
// queues and categories.
func (s *Store) GetTop(lt LearningType, limit int) ([]Learning, error) {
	prefix := prefixTypeIdx + safeKeyPart(string(lt)) + "|"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	now := time.Now()
	var all []Learning
	for iter.Next() {
		id := strings.TrimPrefix(string(iter.Key()), prefix)
		l, err := s.fetch(id)
		if err != nil {
			continue
		}
		all = append(all, l)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Score(now) > all[j].Score(now)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// SaveLocation records a named reference location (base, safe point) as a
// strategic movement learning, replacing any previous fact with that name.
func (s *Store) SaveLocation(queueType, name string, x, y, z int) {
	if prev, err := s.GetSpecific(queueType, "movement", name); err == nil && prev != nil {
		s.delete(*prev)
	}
	s.Add(queueType, Learning{
		Category:     "movement",
		LearningType: TypeStrategic,
		Content:      name,
		Confidence:   0.9,
		Context:      map[string]any{"x": x, "y": y, "z": z},
	})
}

// LoadLocation returns the coordinates of a named reference location.
func (s *Store) LoadLocation(queueType, name string) (x, y, z int, ok bool) {
	l, err := s.GetSpecific(queueType, "movement", name)
	if err != nil || l == nil {
		return 0, 0, 0, false
	}
	xf, xok := asInt(l.Context["x"])
	yf, yok := asInt(l.Context["y"])
	zf, zok := asInt(l.Context["z"])
	if !xok || !yok || !zok {
		return 0, 0, 0, false
	}
	return xf, yf, zf, true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Write path
// ---------------------------------------------------------------------------

func (s *Store) persist(l Learning) {
	data, err := json.Marshal(l)
	if err != nil {
		s.logger.Error("Marshal learning failed", slog.String("id", l.ID), slog.String("error", err.Error()))
		return
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(prefixLearning+l.ID), data)
	batch.Put([]byte(queueIdxPrefix(l.QueueType, l.Category)+l.ID), nil)
	batch.Put([]byte(prefixTypeIdx+safeKeyPart(string(l.LearningType))+"|"+l.ID), nil)

	if err := s.db.Write(batch, nil); err != nil {
		s.logger.Error("Persist learning failed", slog.String("id", l.ID), slog.String("error", err.Error()))
		return
	}

	s.pruneCategory(l.QueueType, l.Category)
}

// pruneCategory evicts the lowest-scoring fraction of a category once it
// exceeds its capacity bound.
func (s *Store) pruneCategory(queueType, category string) {
	if s.categoryCapacity <= 0 {
		return
	}

	prefix := queueIdxPrefix(queueType, category)
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	var all []Learning
	for iter.Next() {
		id := strings.TrimPrefix(string(iter.Key()), prefix)
		l, err := s.fetch(id)
		if err != nil {
			continue
		}
		all = append(all, l)
	}
	iter.Release()

	if len(all) <= s.categoryCapacity {
		return
	}

	now := time.Now()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Score(now) < all[j].Score(now)
	})

	evict := int(float64(len(all)) * s.evictFraction)
	if evict < 1 {
		evict = 1
	}
	for _, l := range all[:evict] {
		s.delete(l)
	}
	s.logger.Info("Pruned learning category",
		slog.String("queue", queueType), slog.String("category", category), slog.Int("evicted", evict))
}

func (s *Store) delete(l Learning) {
	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefixLearning + l.ID))
	batch.Delete([]byte(queueIdxPrefix(l.QueueType, l.Category) + l.ID))
	batch.Delete([]byte(prefixTypeIdx + safeKeyPart(string(l.LearningType)) + "|" + l.ID))
	_ = s.db.Write(batch, nil)
}

func (s *Store) fetch(id string) (Learning, error) {
	data, err := s.db.Get([]byte(prefixLearning+id), nil)
	if err != nil {
		return Learning{}, err
	}
	var l Learning
	return l, json.Unmarshal(data, &l)
}

func (s *Store) drain() {
	for {
		select {
		case l := <-s.writeCh:
			s.persist(l)
		default:
			return
		}
	}
}

func queueIdxPrefix(queueType, category string) string {
	return prefixQueueIdx + safeKeyPart(queueType) + "|" + safeKeyPart(category) + "|"
}

// safeKeyPart replaces "|" so keys parse unambiguously.
func safeKeyPart(s string) string {
	return strings.ReplaceAll(s, "|", "_")
}

// Package cache is the in-process result cache: three LRU+TTL segments
// for answers, semantic passages, and graph rows, keyed by content hash.
package cache

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

type Options struct {
	AnswerSize  int
	PassageSize int
	RowSize     int
	TTL         time.Duration
	Logger      *slog.Logger

	// now is injectable for expiry tests.
	now func() time.Time
}

// Stats is a point-in-time counter snapshot across all segments.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// Memory implements ports.ResultCache. Safe for concurrent use; each
// segment holds its own lock so answer traffic never blocks row lookups.
type Memory struct {
	answers  *segment
	passages *segment
	rows     *segment
	logger   *slog.Logger
}

func NewMemory(options Options) *Memory {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := options.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := options.now
	if now == nil {
		now = time.Now
	}

	return &Memory{
		answers:  newSegment(sizeOrDefault(options.AnswerSize, 500), ttl, now),
		passages: newSegment(sizeOrDefault(options.PassageSize, 1000), ttl, now),
		rows:     newSegment(sizeOrDefault(options.RowSize, 1000), ttl, now),
		logger:   logger,
	}
}

func sizeOrDefault(size, fallback int) int {
	if size <= 0 {
		return fallback
	}
	return size
}

func (m *Memory) GetAnswer(question string) (*domain.Answer, bool) {
	v, ok := m.answers.get(hashKey(question))
	if !ok {
		return nil, false
	}
	answer, ok := v.(*domain.Answer)
	return answer, ok
}

func (m *Memory) SetAnswer(question string, answer *domain.Answer) {
	m.answers.set(hashKey(question), answer)
}

func (m *Memory) GetPassages(question string) ([]domain.Passage, bool) {
	v, ok := m.passages.get(hashKey(question))
	if !ok {
		return nil, false
	}
	passages, ok := v.([]domain.Passage)
	return passages, ok
}

func (m *Memory) SetPassages(question string, passages []domain.Passage) {
	m.passages.set(hashKey(question), passages)
}

func (m *Memory) GetRows(queryKey string) ([]domain.GraphRow, bool) {
	v, ok := m.rows.get(hashKey(queryKey))
	if !ok {
		return nil, false
	}
	rows, ok := v.([]domain.GraphRow)
	return rows, ok
}

func (m *Memory) SetRows(queryKey string, rows []domain.GraphRow) {
	m.rows.set(hashKey(queryKey), rows)
}

// Stats sums the segment counters; exposed on the HTTP surface and
// scraped into the pipeline metrics.
func (m *Memory) Stats() Stats {
	var total Stats
	for _, seg := range []*segment{m.answers, m.passages, m.rows} {
		s := seg.stats()
		total.Hits += s.Hits
		total.Misses += s.Misses
		total.Evictions += s.Evictions
		total.Entries += s.Entries
	}
	return total
}

func hashKey(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

type segment struct {
	mu        sync.Mutex
	maxSize   int
	ttl       time.Duration
	now       func() time.Time
	order     *list.List // front = most recently used
	index     map[string]*list.Element
	hits      uint64
	misses    uint64
	evictions uint64
}

func newSegment(maxSize int, ttl time.Duration, now func() time.Time) *segment {
	return &segment{
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

func (s *segment) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[key]
	if !ok {
		s.misses++
		return nil, false
	}
	ent := elem.Value.(*entry)
	if s.now().Sub(ent.storedAt) > s.ttl {
		s.removeLocked(elem)
		s.misses++
		return nil, false
	}

	s.order.MoveToFront(elem)
	s.hits++
	return ent.value, true
}

func (s *segment) set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.storedAt = s.now()
		s.order.MoveToFront(elem)
		return
	}

	elem := s.order.PushFront(&entry{key: key, value: value, storedAt: s.now()})
	s.index[key] = elem

	for s.order.Len() > s.maxSize {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(oldest)
		s.evictions++
	}
}

func (s *segment) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	s.order.Remove(elem)
	delete(s.index, ent.key)
}

func (s *segment) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Entries:   s.order.Len(),
	}
}

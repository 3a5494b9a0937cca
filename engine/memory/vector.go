package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/memory/embedder"
	"github.com/aionlabs/aion/engine/memory/vectordb"
	"github.com/aionlabs/aion/pkg/logger"
)

// Importance bounds and the near-duplicate threshold (cosine distance).
const (
	MinImportance      = 0.01
	MaxImportance      = 1.0
	DuplicateThreshold = 0.05
)

// TTLInfinite marks entries that never expire.
const TTLInfinite = -1

// Entry is one record of the long-term semantic store.
type Entry struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Importance float64           `json:"importance_score"`
	TTLHours   int               `json:"ttl_hours"`
	CreatedAt  time.Time         `json:"created_at"`
	Source     string            `json:"source"`
	Permanent  bool              `json:"permanent_flag"`
	Creator    bool              `json:"creator_flag"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SearchResult pairs an entry with its distance from the query.
type SearchResult struct {
	Entry
	Distance float32 `json:"distance"`
}

// Similarity is 1 - distance.
func (r *SearchResult) Similarity() float32 {
	return 1 - r.Distance
}

// VectorMemory is the durable semantic store: embeddings with importance
// decay, TTL expiry and near-duplicate suppression. Permanent entries
// survive every maintenance pass.
type VectorMemory struct {
	store vectordb.Store
	embed embedder.Embedder
}

func NewVectorMemory(store vectordb.Store, embed embedder.Embedder) (*VectorMemory, error) {
	if store == nil {
		return nil, core.NewError(errors.New("vector store is required"), "MISSING_DEPENDENCY", nil)
	}
	if embed == nil {
		return nil, core.NewError(errors.New("embedder is required"), "MISSING_DEPENDENCY", nil)
	}
	return &VectorMemory{store: store, embed: embed}, nil
}

// Add stores an entry. With deduplicate, a 1-nearest-neighbor closer than
// the duplicate threshold absorbs the new entry: the existing id survives
// with the higher importance and Add reports false.
func (m *VectorMemory) Add(ctx context.Context, entry Entry, deduplicate bool) (bool, error) {
	if entry.Content == "" {
		return false, core.NewError(errors.New("entry content is required"), "INVALID_INPUT", nil)
	}
	normalizeEntry(&entry)
	vec, err := m.embed.Embed(ctx, entry.Content)
	if err != nil {
		return false, fmt.Errorf("memory: embed content: %w", err)
	}
	if deduplicate {
		hits, err := m.store.Query(ctx, vec, 1)
		if err != nil {
			return false, fmt.Errorf("memory: dedup query: %w", err)
		}
		if len(hits) > 0 && hits[0].Distance() < DuplicateThreshold {
			if err := m.mergeInto(ctx, hits[0].Document, entry.Importance); err != nil {
				return false, err
			}
			logger.FromContext(ctx).Debug("memory merged into near-duplicate",
				"existing_id", hits[0].ID, "distance", hits[0].Distance())
			return false, nil
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	doc := vectordb.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: vec,
		Metadata:  encodeMetadata(&entry),
	}
	if err := m.store.Add(ctx, doc); err != nil {
		return false, fmt.Errorf("memory: add entry: %w", err)
	}
	return true, nil
}

// mergeInto keeps the existing document and raises its importance to the
// max of both entries.
func (m *VectorMemory) mergeInto(ctx context.Context, existing vectordb.Document, newImportance float64) error {
	entry := decodeEntry(existing)
	if newImportance > entry.Importance {
		entry.Importance = clampImportance(newImportance)
		existing.Metadata = encodeMetadata(&entry)
		if err := m.store.Add(ctx, existing); err != nil {
			return fmt.Errorf("memory: update merged entry: %w", err)
		}
	}
	return nil
}

// Search returns the top-n entries by similarity; empty when the store is.
func (m *VectorMemory) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	if n <= 0 {
		return nil, nil
	}
	vec, err := m.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	hits, err := m.store.Query(ctx, vec, n)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, SearchResult{Entry: decodeEntry(hit.Document), Distance: hit.Distance()})
	}
	return out, nil
}

// MarkPermanent pins an entry: infinite TTL, excluded from decay and prune.
func (m *VectorMemory) MarkPermanent(ctx context.Context, id string) error {
	doc, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("memory: mark permanent %q: %w", id, err)
	}
	entry := decodeEntry(*doc)
	entry.Permanent = true
	entry.TTLHours = TTLInfinite
	doc.Metadata = encodeMetadata(&entry)
	if err := m.store.Add(ctx, *doc); err != nil {
		return fmt.Errorf("memory: mark permanent %q: %w", id, err)
	}
	return nil
}

// DecayImportance multiplies every non-permanent entry's importance by
// factor, flooring at MinImportance.
func (m *VectorMemory) DecayImportance(ctx context.Context, factor float64) error {
	if factor <= 0 || factor > 1 {
		return core.NewError(errors.New("decay factor must be in (0, 1]"), "INVALID_INPUT",
			map[string]any{"factor": factor})
	}
	docs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("memory: list for decay: %w", err)
	}
	for _, doc := range docs {
		entry := decodeEntry(doc)
		if entry.Permanent {
			continue
		}
		decayed := clampImportance(entry.Importance * factor)
		if decayed == entry.Importance {
			continue
		}
		entry.Importance = decayed
		doc.Metadata = encodeMetadata(&entry)
		if err := m.store.Add(ctx, doc); err != nil {
			return fmt.Errorf("memory: update decayed entry %q: %w", doc.ID, err)
		}
	}
	return nil
}

// PruneExpired deletes non-permanent entries older than their TTL and
// returns how many were removed.
func (m *VectorMemory) PruneExpired(ctx context.Context) (int, error) {
	docs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory: list for prune: %w", err)
	}
	now := time.Now().UTC()
	var expired []string
	for _, doc := range docs {
		entry := decodeEntry(doc)
		if entry.Permanent || entry.TTLHours <= 0 {
			continue
		}
		if now.Sub(entry.CreatedAt) > time.Duration(entry.TTLHours)*time.Hour {
			expired = append(expired, doc.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := m.store.Delete(ctx, expired...); err != nil {
		return 0, fmt.Errorf("memory: delete expired: %w", err)
	}
	return len(expired), nil
}

// Deduplicate runs a full 5-NN pass collapsing near-duplicate pairs; the
// lower-importance entry is removed, permanent entries never are. Returns
// the removal count.
func (m *VectorMemory) Deduplicate(ctx context.Context) (int, error) {
	docs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory: list for dedup: %w", err)
	}
	removed := make(map[string]struct{})
	for _, doc := range docs {
		if _, gone := removed[doc.ID]; gone {
			continue
		}
		hits, err := m.store.Query(ctx, doc.Embedding, 5)
		if err != nil {
			return 0, fmt.Errorf("memory: dedup query: %w", err)
		}
		keeper := decodeEntry(doc)
		for _, hit := range hits {
			if hit.ID == doc.ID {
				continue
			}
			if _, gone := removed[hit.ID]; gone {
				continue
			}
			if hit.Distance() >= DuplicateThreshold {
				continue
			}
			candidate := decodeEntry(hit.Document)
			victim := pickVictim(keeper, candidate)
			if victim == "" {
				continue
			}
			removed[victim] = struct{}{}
			if victim == keeper.ID {
				// The keeper lost; stop expanding from it.
				break
			}
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(removed))
	for id := range removed {
		ids = append(ids, id)
	}
	if err := m.store.Delete(ctx, ids...); err != nil {
		return 0, fmt.Errorf("memory: delete duplicates: %w", err)
	}
	return len(ids), nil
}

// pickVictim chooses which of a duplicate pair to drop; empty when neither
// may be removed.
func pickVictim(a, b Entry) string {
	switch {
	case a.Permanent && b.Permanent:
		return ""
	case a.Permanent:
		return b.ID
	case b.Permanent:
		return a.ID
	case a.Importance >= b.Importance:
		return b.ID
	default:
		return a.ID
	}
}

// FlushAll drops every entry, permanent included. Administrative path.
func (m *VectorMemory) FlushAll(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return fmt.Errorf("memory: flush all: %w", err)
	}
	return nil
}

// FlushNonPermanent drops everything except pinned entries and returns the
// removal count.
func (m *VectorMemory) FlushNonPermanent(ctx context.Context) (int, error) {
	docs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory: list for flush: %w", err)
	}
	var ids []string
	for _, doc := range docs {
		if !decodeEntry(doc).Permanent {
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := m.store.Delete(ctx, ids...); err != nil {
		return 0, fmt.Errorf("memory: flush non-permanent: %w", err)
	}
	return len(ids), nil
}

// GetAll pages through entries sorted by importance, highest first.
func (m *VectorMemory) GetAll(ctx context.Context, limit, offset int) ([]Entry, error) {
	docs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: list all: %w", err)
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, decodeEntry(doc))
	}
	sort.SliceStable(entries, func(i, k int) bool { return entries[i].Importance > entries[k].Importance })
	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Count reports the number of stored entries.
func (m *VectorMemory) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

func normalizeEntry(entry *Entry) {
	if entry.Importance == 0 {
		entry.Importance = 0.5
	}
	entry.Importance = clampImportance(entry.Importance)
	if entry.Permanent {
		entry.TTLHours = TTLInfinite
	}
	if entry.TTLHours == 0 {
		entry.TTLHours = TTLInfinite
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func clampImportance(v float64) float64 {
	return core.ClampFloat(v, MinImportance, MaxImportance)
}

// Reserved metadata keys on stored documents.
const (
	metaImportance = "importance_score"
	metaTTLHours   = "ttl_hours"
	metaCreatedAt  = "created_at"
	metaSource     = "source"
	metaPermanent  = "permanent"
	metaCreator    = "creator"
)

func encodeMetadata(entry *Entry) map[string]string {
	out := make(map[string]string, len(entry.Metadata)+6)
	for k, v := range entry.Metadata {
		out[k] = v
	}
	out[metaImportance] = strconv.FormatFloat(entry.Importance, 'f', -1, 64)
	out[metaTTLHours] = strconv.Itoa(entry.TTLHours)
	out[metaCreatedAt] = entry.CreatedAt.UTC().Format(time.RFC3339Nano)
	out[metaSource] = entry.Source
	out[metaPermanent] = strconv.FormatBool(entry.Permanent)
	out[metaCreator] = strconv.FormatBool(entry.Creator)
	return out
}

func decodeEntry(doc vectordb.Document) Entry {
	entry := Entry{
		ID:         doc.ID,
		Content:    doc.Content,
		Importance: 0.5,
		TTLHours:   TTLInfinite,
		Metadata:   make(map[string]string),
	}
	for k, v := range doc.Metadata {
		switch k {
		case metaImportance:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				entry.Importance = clampImportance(f)
			}
		case metaTTLHours:
			if n, err := strconv.Atoi(v); err == nil {
				entry.TTLHours = n
			}
		case metaCreatedAt:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				entry.CreatedAt = t
			}
		case metaSource:
			entry.Source = v
		case metaPermanent:
			entry.Permanent = v == "true"
		case metaCreator:
			entry.Creator = v == "true"
		default:
			entry.Metadata[k] = v
		}
	}
	return entry
}

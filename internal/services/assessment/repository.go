package assessment

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/config"
	"dqa360-backend/internal/datastore"
	"dqa360-backend/internal/models"
)

const (
	// KeyPrefix is prepended to assessment IDs to form dataStore keys
	KeyPrefix = "assessment_"
	// IndexKey holds the secondary index of assessment summaries
	IndexKey = "assessments-index"
)

// Repository persists assessment documents in the dataStore and maintains
// the secondary index alongside them. The index is best-effort: document
// writes succeed even when the index write fails, and listing falls back to
// a namespace scan whenever the index is missing or empty.
type Repository struct {
	store     datastore.Store
	namespace string

	cacheTTL     time.Duration
	indexTimeout time.Duration
	scanTimeout  time.Duration

	mu       sync.Mutex
	cached   []models.AssessmentSummary
	cachedAt time.Time

	group singleflight.Group
}

// NewRepository creates a repository over the given store using the
// configured namespace, cache TTL and list timeouts.
func NewRepository(store datastore.Store, cfg *config.Config) *Repository {
	return &Repository{
		store:        store,
		namespace:    cfg.Namespace,
		cacheTTL:     cfg.ListCacheTTL,
		indexTimeout: cfg.ListIndexTimeout,
		scanTimeout:  cfg.ListScanTimeout,
	}
}

// Save writes a document under its key, updating it in place or creating it
// when absent. The document is normalized first, gets a generated ID when it
// has none, and its lastUpdated timestamp is refreshed. The index entry is
// upserted best-effort afterwards.
func (r *Repository) Save(ctx context.Context, a *models.Assessment) (*models.Assessment, error) {
	if a == nil {
		return nil, fmt.Errorf("save assessment: nil document")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	a.LastUpdated = now
	Normalize(a)

	key := KeyFor(a.ID)
	err := r.store.Update(ctx, r.namespace, key, a)
	if api.IsNotFound(err) {
		err = r.store.Create(ctx, r.namespace, key, a)
	}
	if err != nil {
		return nil, fmt.Errorf("save assessment %s: %w", a.ID, err)
	}

	r.updateIndex(ctx, func(idx *models.AssessmentIndex) {
		upsertSummary(idx, a.Summary())
	})
	r.ClearCache()

	return a, nil
}

// Get loads one document by ID. A missing document returns (nil, nil);
// anything found is normalized before it is returned.
func (r *Repository) Get(ctx context.Context, id string) (*models.Assessment, error) {
	var a models.Assessment
	err := r.store.Get(ctx, r.namespace, KeyFor(id), &a)
	if api.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment %s: %w", id, err)
	}
	if a.ID == "" {
		a.ID = strings.TrimPrefix(id, KeyPrefix)
	}
	return Normalize(&a), nil
}

// Delete removes a document and drops its index entry. Deleting an absent
// document is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, r.namespace, KeyFor(id))
	if err != nil && !api.IsNotFound(err) {
		return fmt.Errorf("delete assessment %s: %w", id, err)
	}

	bare := strings.TrimPrefix(id, KeyPrefix)
	r.updateIndex(ctx, func(idx *models.AssessmentIndex) {
		kept := idx.Assessments[:0]
		for _, s := range idx.Assessments {
			if s.ID != bare {
				kept = append(kept, s)
			}
		}
		idx.Assessments = kept
	})
	r.ClearCache()

	return nil
}

// List returns the summaries of all assessments, newest first. Results are
// cached for the configured TTL and concurrent callers share a single
// backend load. When the cache is cold the index is consulted first under a
// short timeout; a missing, empty or failing index falls back to scanning
// the namespace under a longer timeout, and a failing scan degrades to an
// empty list rather than an error.
func (r *Repository) List(ctx context.Context) ([]models.AssessmentSummary, error) {
	r.mu.Lock()
	if r.cached != nil && time.Since(r.cachedAt) < r.cacheTTL {
		out := append([]models.AssessmentSummary(nil), r.cached...)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do("list", func() (interface{}, error) {
		summaries := r.loadSummaries(ctx)
		r.mu.Lock()
		r.cached = summaries
		r.cachedAt = time.Now()
		r.mu.Unlock()
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]models.AssessmentSummary(nil), v.([]models.AssessmentSummary)...), nil
}

// ClearCache drops the list cache so the next List hits the backend
func (r *Repository) ClearCache() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// RebuildIndex rescans the namespace and rewrites the index from scratch.
// Used by the scheduled rebuild job and after fallback listings.
func (r *Repository) RebuildIndex(ctx context.Context) (*models.AssessmentIndex, error) {
	summaries, partial := r.scanNamespace(ctx, r.scanTimeout)
	idx := newIndex(summaries, partial)
	if err := datastore.Upsert(ctx, r.store, r.namespace, IndexKey, idx); err != nil {
		return nil, fmt.Errorf("rebuild assessments index: %w", err)
	}
	r.ClearCache()
	return idx, nil
}

// Repair runs the local dataset repair on one document and saves it when
// anything changed. Returns the (possibly repaired) document and whether a
// write happened.
func (r *Repository) Repair(ctx context.Context, id string) (*models.Assessment, bool, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if a == nil {
		return nil, false, fmt.Errorf("repair assessment %s: not found", id)
	}
	if !RepairLocalDatasets(a) {
		return a, false, nil
	}
	saved, err := r.Save(ctx, a)
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

func (r *Repository) loadSummaries(ctx context.Context) []models.AssessmentSummary {
	ictx, cancel := context.WithTimeout(ctx, r.indexTimeout)
	defer cancel()

	var idx models.AssessmentIndex
	err := r.store.Get(ictx, r.namespace, IndexKey, &idx)
	if err == nil && len(idx.Assessments) > 0 {
		return sortSummaries(idx.Assessments)
	}
	if err != nil && !api.IsNotFound(err) {
		log.Printf("WARNING: assessments index unavailable, scanning namespace: %v", err)
	}

	summaries, partial := r.scanNamespace(ctx, r.scanTimeout)

	// Opportunistic rebuild so the next listing can take the fast path
	if err := datastore.Upsert(ctx, r.store, r.namespace, IndexKey, newIndex(summaries, partial)); err != nil {
		log.Printf("WARNING: failed to rebuild assessments index: %v", err)
	}

	return summaries
}

// scanNamespace lists every assessment_* key and loads each document to
// build summaries. Errors degrade: a failed key listing (a missing
// namespace on a fresh install included) yields an empty result, a failed
// or timed-out document load marks the result partial and moves on.
func (r *Repository) scanNamespace(ctx context.Context, timeout time.Duration) ([]models.AssessmentSummary, bool) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	keys, err := r.store.ListKeys(sctx, r.namespace)
	if err != nil {
		if !api.IsNotFound(err) {
			log.Printf("WARNING: namespace scan failed, returning empty list: %v", err)
		}
		return []models.AssessmentSummary{}, false
	}

	summaries := []models.AssessmentSummary{}
	partial := false
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		if sctx.Err() != nil {
			partial = true
			break
		}
		var a models.Assessment
		if err := r.store.Get(sctx, r.namespace, key, &a); err != nil {
			if !api.IsNotFound(err) {
				log.Printf("WARNING: skipping unreadable assessment %s: %v", key, err)
				partial = true
			}
			continue
		}
		if a.ID == "" {
			a.ID = strings.TrimPrefix(key, KeyPrefix)
		}
		Normalize(&a)
		summaries = append(summaries, a.Summary())
	}

	return sortSummaries(summaries), partial
}

// updateIndex applies a mutation to the index read-modify-write. Failures
// are logged, never propagated: the documents stay the source of truth and
// the index can always be rebuilt.
func (r *Repository) updateIndex(ctx context.Context, mutate func(*models.AssessmentIndex)) {
	var idx models.AssessmentIndex
	err := r.store.Get(ctx, r.namespace, IndexKey, &idx)
	if err != nil && !api.IsNotFound(err) {
		log.Printf("WARNING: failed to load assessments index for update: %v", err)
		return
	}
	if idx.Assessments == nil {
		idx.Assessments = []models.AssessmentSummary{}
	}

	mutate(&idx)
	idx.Version = SchemaVersion
	idx.Structure = StructureNested
	idx.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	idx.Assessments = sortSummaries(idx.Assessments)
	idx.Partial = false

	if err := datastore.Upsert(ctx, r.store, r.namespace, IndexKey, &idx); err != nil {
		log.Printf("WARNING: failed to write assessments index: %v", err)
	}
}

func upsertSummary(idx *models.AssessmentIndex, s models.AssessmentSummary) {
	for i := range idx.Assessments {
		if idx.Assessments[i].ID == s.ID {
			idx.Assessments[i] = s
			return
		}
	}
	idx.Assessments = append(idx.Assessments, s)
}

func newIndex(summaries []models.AssessmentSummary, partial bool) *models.AssessmentIndex {
	return &models.AssessmentIndex{
		Assessments: summaries,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Version:     SchemaVersion,
		Structure:   StructureNested,
		Partial:     partial,
	}
}

func sortSummaries(summaries []models.AssessmentSummary) []models.AssessmentSummary {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastUpdated > summaries[j].LastUpdated
	})
	return summaries
}

package assessment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/config"
	"dqa360-backend/internal/models"
)

// memStore is an in-memory dataStore that serializes values through JSON the
// way the real backend does, so omitempty and round-trip behavior are real.
type memStore struct {
	mu         sync.Mutex
	namespaces map[string]map[string]json.RawMessage
	getCalls   int
	listCalls  int
	failKeys   bool
	failGets   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		namespaces: map[string]map[string]json.RawMessage{},
		failGets:   map[string]bool{},
	}
}

func (s *memStore) ns(namespace string) map[string]json.RawMessage {
	if s.namespaces[namespace] == nil {
		s.namespaces[namespace] = map[string]json.RawMessage{}
	}
	return s.namespaces[namespace]
}

func (s *memStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failKeys {
		return nil, &api.StatusError{Code: 500, Body: "boom"}
	}
	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil, &api.StatusError{Code: 404, Body: "namespace not found"}
	}
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memStore) Get(ctx context.Context, namespace, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.failGets[key] {
		return &api.StatusError{Code: 500, Body: "boom"}
	}
	raw, ok := s.ns(namespace)[key]
	if !ok {
		return &api.StatusError{Code: 404, Body: "key not found"}
	}
	return json.Unmarshal(raw, dest)
}

func (s *memStore) Create(ctx context.Context, namespace, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.ns(namespace)[key] = raw
	return nil
}

func (s *memStore) Update(ctx context.Context, namespace, key string, value interface{}) error {
	s.mu.Lock()
	if _, ok := s.ns(namespace)[key]; !ok {
		s.mu.Unlock()
		return &api.StatusError{Code: 404, Body: "key not found"}
	}
	s.mu.Unlock()
	return s.Create(ctx, namespace, key, value)
}

func (s *memStore) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ns(namespace)[key]; !ok {
		return &api.StatusError{Code: 404, Body: "key not found"}
	}
	delete(s.ns(namespace), key)
	return nil
}

func (s *memStore) rawJSON(t *testing.T, namespace, key string) map[string]interface{} {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.ns(namespace)[key]
	require.True(t, ok, "expected key %s to exist", key)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Namespace:             "dqa360",
		ListCacheTTL:          30 * time.Second,
		ListIndexTimeout:      8 * time.Second,
		ListScanTimeout:       15 * time.Second,
		SharingPublicAccess:   "r-------",
		SharingExternalAccess: false,
	}
}

func testAssessment(id, name string) *models.Assessment {
	b := NewBuilder(testConfig())
	return b.Build(
		map[string]interface{}{"id": id, "name": name},
		nil, nil, nil, nil, nil, nil,
		"tester",
	)
}

func TestRepositorySave(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create a new document and its index entry", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		saved, err := repo.Save(ctx, testAssessment("a1", "Q1"))
		require.NoError(t, err)
		assert.Equal(t, "a1", saved.ID)

		doc := store.rawJSON(t, "dqa360", "assessment_a1")
		assert.Equal(t, "3.0.0", doc["version"])
		assert.Equal(t, "nested", doc["structure"])

		idx := store.rawJSON(t, "dqa360", IndexKey)
		entries := idx["assessments"].([]interface{})
		require.Len(t, entries, 1)
		assert.Equal(t, "a1", entries[0].(map[string]interface{})["id"])
	})

	t.Run("Should update an existing document without duplicating its index entry", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		_, err := repo.Save(ctx, testAssessment("a1", "Q1"))
		require.NoError(t, err)
		_, err = repo.Save(ctx, testAssessment("a1", "Q1 revised"))
		require.NoError(t, err)

		idx := store.rawJSON(t, "dqa360", IndexKey)
		entries := idx["assessments"].([]interface{})
		require.Len(t, entries, 1)
		assert.Equal(t, "Q1 revised", entries[0].(map[string]interface{})["name"])
	})

	t.Run("Should generate an ID when the document has none", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		saved, err := repo.Save(ctx, testAssessment("", "unnamed"))
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
	})

	t.Run("Should reuse a key-prefixed ID instead of double-prefixing", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		_, err := repo.Save(ctx, testAssessment("assessment_a1", "prefixed"))
		require.NoError(t, err)

		store.mu.Lock()
		_, doublePrefixed := store.ns("dqa360")["assessment_assessment_a1"]
		_, single := store.ns("dqa360")["assessment_a1"]
		store.mu.Unlock()
		assert.False(t, doublePrefixed)
		assert.True(t, single)
	})
}

func TestRepositoryGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return nil for a missing document", func(t *testing.T) {
		repo := NewRepository(newMemStore(), testConfig())
		got, err := repo.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should migrate a legacy document on read", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		legacy := map[string]interface{}{
			"id":      "old1",
			"version": "2.0.0",
			"Info":    map[string]interface{}{"name": "Legacy"},
			"Dhis2config": map[string]interface{}{
				"info": map[string]interface{}{"baseUrl": "https://play.dhis2.org"},
			},
		}
		require.NoError(t, store.Create(ctx, "dqa360", "assessment_old1", legacy))

		got, err := repo.Get(ctx, "old1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "3.0.0", got.Version)
		assert.Equal(t, "nested", got.Structure)
		require.NotNil(t, got.Info.Dhis2Config)
		assert.Equal(t, "https://play.dhis2.org", got.Info.Dhis2Config.Info.BaseURL)
		assert.Nil(t, got.LegacyDhis2Config)
	})

	t.Run("Should drop the legacy root key once the document is written back", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		legacy := map[string]interface{}{
			"id":   "old2",
			"Info": map[string]interface{}{"name": "Legacy"},
			"Dhis2config": map[string]interface{}{
				"info": map[string]interface{}{"baseUrl": "https://play.dhis2.org"},
			},
		}
		require.NoError(t, store.Create(ctx, "dqa360", "assessment_old2", legacy))

		got, err := repo.Get(ctx, "old2")
		require.NoError(t, err)
		_, err = repo.Save(ctx, got)
		require.NoError(t, err)

		doc := store.rawJSON(t, "dqa360", "assessment_old2")
		_, hasLegacyRoot := doc["Dhis2config"]
		assert.False(t, hasLegacyRoot)
		info := doc["Info"].(map[string]interface{})
		assert.NotNil(t, info["Dhis2config"])
	})
}

func TestRepositoryList(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list from the index when present", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		_, err := repo.Save(ctx, testAssessment("a1", "Q1"))
		require.NoError(t, err)
		_, err = repo.Save(ctx, testAssessment("a2", "Q2"))
		require.NoError(t, err)

		got, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Should fall back to a namespace scan when the index is missing", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		require.NoError(t, store.Create(ctx, "dqa360", "assessment_a1", testAssessment("a1", "Q1")))
		require.NoError(t, store.Create(ctx, "dqa360", "assessment_a2", testAssessment("a2", "Q2")))
		require.NoError(t, store.Create(ctx, "dqa360", "unrelated_key", map[string]interface{}{"x": 1}))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)

		// The scan rebuilds the index opportunistically
		idx := store.rawJSON(t, "dqa360", IndexKey)
		assert.Len(t, idx["assessments"].([]interface{}), 2)
	})

	t.Run("Should skip unreadable documents and mark the rebuilt index partial", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		require.NoError(t, store.Create(ctx, "dqa360", "assessment_a1", testAssessment("a1", "Q1")))
		require.NoError(t, store.Create(ctx, "dqa360", "assessment_bad", testAssessment("bad", "broken")))
		store.failGets["assessment_bad"] = true

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a1", got[0].ID)

		idx := store.rawJSON(t, "dqa360", IndexKey)
		assert.Equal(t, true, idx["partial"])
	})

	t.Run("Should return an empty list on a fresh install", func(t *testing.T) {
		repo := NewRepository(newMemStore(), testConfig())
		got, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should return an empty list when the scan itself fails", func(t *testing.T) {
		store := newMemStore()
		store.failKeys = true
		repo := NewRepository(store, testConfig())

		got, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should serve a second list within the TTL from cache", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		_, err := repo.Save(ctx, testAssessment("a1", "Q1"))
		require.NoError(t, err)

		first, err := repo.List(ctx)
		require.NoError(t, err)

		store.mu.Lock()
		callsAfterFirst := store.getCalls + store.listCalls
		store.mu.Unlock()

		second, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		store.mu.Lock()
		callsAfterSecond := store.getCalls + store.listCalls
		store.mu.Unlock()
		assert.Equal(t, callsAfterFirst, callsAfterSecond, "second list within TTL must not hit the backend")
	})

	t.Run("Should reflect a delete on the next list", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		_, err := repo.Save(ctx, testAssessment("a1", "Q1"))
		require.NoError(t, err)
		_, err = repo.Save(ctx, testAssessment("a2", "Q2"))
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, "a1"))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a2", got[0].ID)
	})
}

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Should tolerate deleting an absent document", func(t *testing.T) {
		repo := NewRepository(newMemStore(), testConfig())
		assert.NoError(t, repo.Delete(ctx, "nope"))
	})
}

func TestRepositoryRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("Should assign local IDs to created datasets missing a DHIS2 ID", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		a := testAssessment("a1", "Q1")
		a.LocalDatasets = []models.LocalDataset{
			{Info: models.LocalDatasetInfo{ID: "ld1", Name: "Register", Status: "created"}},
		}
		_, err := repo.Save(ctx, a)
		require.NoError(t, err)

		repaired, changed, err := repo.Repair(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, changed)

		info := repaired.LocalDatasets[0].Info
		require.NotNil(t, info.Dhis2ID)
		assert.Contains(t, *info.Dhis2ID, "local_")
		assert.Equal(t, "local", info.Status)
		assert.True(t, info.IsLocal)
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		a := testAssessment("a1", "Q1")
		a.LocalDatasets = []models.LocalDataset{
			{Info: models.LocalDatasetInfo{ID: "ld1", Name: "Register", Status: "created"}},
		}
		_, err := repo.Save(ctx, a)
		require.NoError(t, err)

		_, changed, err := repo.Repair(ctx, "a1")
		require.NoError(t, err)
		require.True(t, changed)

		_, changed, err = repo.Repair(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Should leave drafts and linked datasets alone", func(t *testing.T) {
		store := newMemStore()
		repo := NewRepository(store, testConfig())

		remoteID := "AbCdEfGhIj1"
		a := testAssessment("a1", "Q1")
		a.LocalDatasets = []models.LocalDataset{
			{Info: models.LocalDatasetInfo{ID: "ld1", Status: "draft"}},
			{Info: models.LocalDatasetInfo{ID: "ld2", Status: "created", Dhis2ID: &remoteID}},
		}
		_, err := repo.Save(ctx, a)
		require.NoError(t, err)

		_, changed, err := repo.Repair(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

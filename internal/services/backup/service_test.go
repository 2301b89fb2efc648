package backup

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqa360-backend/internal/api"
)

type memStore struct {
	mu       sync.Mutex
	data     map[string]map[string]json.RawMessage
	failGets map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		data:     map[string]map[string]json.RawMessage{},
		failGets: map[string]bool{},
	}
}

func (s *memStore) ns(namespace string) map[string]json.RawMessage {
	if s.data[namespace] == nil {
		s.data[namespace] = map[string]json.RawMessage{}
	}
	return s.data[namespace]
}

func (s *memStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, &api.StatusError{Code: 404, Body: "namespace not found"}
	}
	keys := []string{}
	for k := range ns {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memStore) Get(ctx context.Context, namespace, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
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
	delete(s.ns(namespace), key)
	return nil
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("Should export every key of the requested namespaces", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(ctx, "dqa360", "assessment_a1", map[string]interface{}{"id": "a1"}))
		require.NoError(t, store.Create(ctx, "dqa360", "assessments-index", map[string]interface{}{"assessments": []interface{}{}}))

		doc, err := NewService(store).Export(ctx, []string{"dqa360"})
		require.NoError(t, err)

		assert.Equal(t, FormatName, doc.Meta.Format)
		assert.Equal(t, 1, doc.Meta.NamespaceCount)
		assert.NotEmpty(t, doc.Meta.ExportedAt)
		require.Contains(t, doc.Data, "dqa360")
		assert.Len(t, doc.Data["dqa360"], 2)
	})

	t.Run("Should record unreadable keys as error placeholders", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(ctx, "dqa360", "good", map[string]interface{}{"x": 1}))
		require.NoError(t, store.Create(ctx, "dqa360", "bad", map[string]interface{}{"x": 2}))
		store.failGets["bad"] = true

		doc, err := NewService(store).Export(ctx, []string{"dqa360"})
		require.NoError(t, err)

		placeholder := doc.Data["dqa360"]["bad"].(map[string]interface{})
		assert.Contains(t, placeholder, "__error__")
		assert.NotContains(t, doc.Data["dqa360"]["good"], "__error__")
	})

	t.Run("Should treat a missing namespace as empty", func(t *testing.T) {
		doc, err := NewService(newMemStore()).Export(ctx, []string{"nothing-here"})
		require.NoError(t, err)
		assert.Empty(t, doc.Data["nothing-here"])
	})
}

func TestImport(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round-trip an export", func(t *testing.T) {
		source := newMemStore()
		require.NoError(t, source.Create(ctx, "dqa360", "assessment_a1", map[string]interface{}{"id": "a1"}))
		require.NoError(t, source.Create(ctx, "dqa360-settings", "prefs", map[string]interface{}{"theme": "dark"}))

		doc, err := NewService(source).Export(ctx, []string{"dqa360", "dqa360-settings"})
		require.NoError(t, err)

		target := newMemStore()
		result, err := NewService(target).Import(ctx, doc)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Created)
		assert.Equal(t, 0, result.Updated)
		assert.Equal(t, 0, result.Failed)

		var restored map[string]interface{}
		require.NoError(t, target.Get(ctx, "dqa360", "assessment_a1", &restored))
		assert.Equal(t, "a1", restored["id"])
	})

	t.Run("Should update keys that already exist", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(ctx, "dqa360", "prefs", map[string]interface{}{"theme": "light"}))

		doc := &Document{
			Meta: Meta{Format: FormatName},
			Data: map[string]map[string]interface{}{
				"dqa360": {"prefs": map[string]interface{}{"theme": "dark"}},
			},
		}

		result, err := NewService(store).Import(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 0, result.Created)

		var prefs map[string]interface{}
		require.NoError(t, store.Get(ctx, "dqa360", "prefs", &prefs))
		assert.Equal(t, "dark", prefs["theme"])
	})

	t.Run("Should skip error placeholders", func(t *testing.T) {
		store := newMemStore()
		doc := &Document{
			Meta: Meta{Format: FormatName},
			Data: map[string]map[string]interface{}{
				"dqa360": {
					"broken": map[string]interface{}{"__error__": "HTTP 500"},
					"fine":   map[string]interface{}{"x": 1},
				},
			},
		}

		result, err := NewService(store).Import(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)

		var out interface{}
		err = store.Get(ctx, "dqa360", "broken", &out)
		assert.True(t, api.IsNotFound(err))
	})

	t.Run("Should reject an unknown format", func(t *testing.T) {
		doc := &Document{Meta: Meta{Format: "something-else"}}
		_, err := NewService(newMemStore()).Import(ctx, doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})
}

package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	t.Run("Should evict the least recently used entry at capacity", func(t *testing.T) {
		c := newLRUCache(2)
		c.Put("a", "Alpha")
		c.Put("b", "Beta")

		// Touch "a" so "b" becomes the eviction candidate
		_, ok := c.Get("a")
		require.True(t, ok)

		c.Put("c", "Gamma")

		_, ok = c.Get("b")
		assert.False(t, ok)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "Alpha", v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("Should overwrite an existing key in place", func(t *testing.T) {
		c := newLRUCache(2)
		c.Put("a", "old")
		c.Put("a", "new")

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, "new", v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("Should be empty after Clear", func(t *testing.T) {
		c := newLRUCache(4)
		c.Put("a", "1")
		c.Put("b", "2")
		c.Clear()

		assert.Equal(t, 0, c.Len())
		_, ok := c.Get("a")
		assert.False(t, ok)
	})
}

func TestStatusErrorClassification(t *testing.T) {
	t.Run("Should detect 404 through wrapping", func(t *testing.T) {
		err := fmt.Errorf("fetching dataset: %w", &StatusError{Code: 404, Body: "Not Found"})
		assert.True(t, IsNotFound(err))
		assert.False(t, IsConflict(err))
	})

	t.Run("Should detect 409 through wrapping", func(t *testing.T) {
		err := fmt.Errorf("creating dataset: %w", &StatusError{Code: 409, Body: "name already taken"})
		assert.True(t, IsConflict(err))
		assert.False(t, IsNotFound(err))
	})

	t.Run("Should not match plain errors", func(t *testing.T) {
		err := fmt.Errorf("connection refused")
		assert.False(t, IsNotFound(err))
		assert.False(t, IsConflict(err))
	})
}

func TestGenerateLocalUID(t *testing.T) {
	t.Run("Should produce valid UIDs starting with a letter", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			uid := GenerateLocalUID()
			assert.True(t, IsValidUID(uid), "generated %q", uid)
			first := uid[0]
			assert.True(t, (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z'))
		}
	})

	t.Run("Should reject malformed UIDs", func(t *testing.T) {
		assert.False(t, IsValidUID("short"))
		assert.False(t, IsValidUID("has-dashes-x"))
		assert.False(t, IsValidUID(""))
	})
}

func TestGetOrgUnitName(t *testing.T) {
	t.Run("Should resolve the display name and serve repeats from cache", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"OuAbc123456","name":"District A","displayName":"District A Hospital"}`)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "admin", "district")

		assert.Equal(t, "District A Hospital", client.GetOrgUnitName("OuAbc123456"))
		assert.Equal(t, "District A Hospital", client.GetOrgUnitName("OuAbc123456"))
		assert.Equal(t, 1, calls)
	})

	t.Run("Should fall back to the ID when the unit cannot be fetched", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "admin", "district")

		assert.Equal(t, "OuMissing99", client.GetOrgUnitName("OuMissing99"))
	})
}

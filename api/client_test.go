// ABOUTME: Tests for the CRM REST client
// ABOUTME: Covers list decoding, retry on 5xx, 429 suppression, 401 token clearing, and conflicts
package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harperreed/funnel/models"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL: srv.URL,
		TokenProvider: func(ctx context.Context) (string, error) {
			return "test-token", nil
		},
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	})
}

func TestListEntitiesBareArray(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"C-1","name":"Acme"}]`))
	}))

	items, err := c.ListEntities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "C-1", items[0]["id"])
}

func TestListEntitiesDataWrapper(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"L-1","type":"lead"}]}`))
	}))

	items, err := c.ListEntities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "lead", items[0]["type"])
}

func TestListEntitiesForceRefreshHint(t *testing.T) {
	var gotQuery string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := c.ListEntities(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "refresh=1", gotQuery)
}

func TestRetryOn5xx(t *testing.T) {
	attempts := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := c.ListOpportunities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExhausted5xxIsTransient(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.ListOpportunities(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestUnauthorizedClearsToken(t *testing.T) {
	tokenPathOverride = filepath.Join(t.TempDir(), "creds.json")
	t.Cleanup(func() { tokenPathOverride = "" })
	require.NoError(t, SaveToken(&oauth2.Token{AccessToken: "stale"}))

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.ListEntities(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	token, err := LoadToken()
	require.NoError(t, err)
	assert.Nil(t, token, "401 must clear stored credentials")
}

func TestNoTokenSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	c := New(Options{
		BaseURL: srv.URL,
		TokenProvider: func(ctx context.Context) (string, error) {
			return "", nil
		},
	})

	_, err := c.ListEntities(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, called)
}

func TestRateLimitCapturedAndSuppressed(t *testing.T) {
	calls := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.ListEntities(context.Background(), false)
	retryAt, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.True(t, retryAt.After(time.Now().Add(30*time.Second)))

	// Subsequent calls are suppressed without hitting the server.
	_, err = c.ListEntities(context.Background(), false)
	_, ok = IsRateLimited(err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestConflictSurfacedVerbatim(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"duplicate name: Acme Corp"}`))
	}))

	_, err := c.CreateEntity(context.Background(), models.TypeClient, map[string]any{"name": "Acme Corp"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "duplicate name: Acme Corp", err.Error())
}

func TestDeleteNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := c.DeleteEntity(context.Background(), models.TypeLead, "L-404")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEntityPaths(t *testing.T) {
	var gotPath, gotMethod string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"id":"X"}`))
	}))

	_, err := c.ToggleStar(context.Background(), models.TypeLead, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "/v1/leads/L-1/star", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)

	_, err = c.PatchEntity(context.Background(), models.TypeClient, "C-1", map[string]any{"stage": "Interest"})
	require.NoError(t, err)
	assert.Equal(t, "/v1/clients/C-1", gotPath)
	assert.Equal(t, http.MethodPatch, gotMethod)
}

func TestListGroups(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"G1","name":"One","_count":{"childCompanies":2,"groupChildren":0}}]`))
	}))

	groups, err := c.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "One", groups[0].Name)
	assert.Equal(t, 2, groups[0].Count.ChildCompanies)
}

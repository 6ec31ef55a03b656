package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBotClientRoles(t *testing.T) {
	var got roleRequest
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal/roles/members":
			assert.Equal(t, "42", r.URL.Query().Get("role_id"))
			_ = json.NewEncoder(w).Encode(map[string]any{"user_ids": []string{"a", "b"}})
		case "/internal/roles/grant", "/internal/roles/revoke":
			gotPath = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&got)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewBotClient(srv.URL+"/", "42", zap.NewNop())
	ctx := context.Background()

	members, err := c.RoleMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)

	require.NoError(t, c.GrantRole(ctx, "u1", "verified"))
	assert.Equal(t, "/internal/roles/grant", gotPath)
	assert.Equal(t, roleRequest{UserID: "u1", RoleID: "42", Reason: "verified"}, got)

	require.NoError(t, c.RevokeRole(ctx, "u1", "audit"))
	assert.Equal(t, "/internal/roles/revoke", gotPath)
}

func TestBotClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewBotClient(srv.URL, "42", zap.NewNop())
	assert.Error(t, c.GrantRole(context.Background(), "u1", "x"))
	_, err := c.RoleMembers(context.Background())
	assert.Error(t, err)
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockTokenAuthenticator is a mock implementation of TokenAuthenticator
type MockTokenAuthenticator struct {
	mock.Mock
}

func (m *MockTokenAuthenticator) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockKeyAuthenticator is a mock implementation of KeyAuthenticator
type MockKeyAuthenticator struct {
	mock.Mock
}

func (m *MockKeyAuthenticator) Verify(ctx context.Context, rawKey string) (*models.APIKey, error) {
	args := m.Called(ctx, rawKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.APIKey), args.Error(1)
}

// MockUserLoader is a mock implementation of UserLoader
type MockUserLoader struct {
	mock.Mock
}

func (m *MockUserLoader) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func newTestAuthMiddleware() (*MockTokenAuthenticator, *MockKeyAuthenticator, *MockUserLoader, *AuthMiddleware) {
	tokens := new(MockTokenAuthenticator)
	keys := new(MockKeyAuthenticator)
	users := new(MockUserLoader)
	return tokens, keys, users, NewAuthMiddleware(tokens, keys, users, zap.NewNop())
}

func TestAuthenticate(t *testing.T) {
	t.Run("valid bearer token", func(t *testing.T) {
		tokens, _, _, m := newTestAuthMiddleware()

		user := models.NewUser("alice", "alice@example.com", "hashed")
		tokens.On("UserFromToken", mock.Anything, "good-token").Return(user, nil)

		handlerCalled := false
		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			assert.Equal(t, user, UserFromContext(r.Context()))
			assert.Nil(t, APIKeyFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
		tokens.AssertExpectations(t)
	})

	t.Run("invalid bearer token", func(t *testing.T) {
		tokens, _, _, m := newTestAuthMiddleware()

		tokens.On("UserFromToken", mock.Anything, "bad-token").
			Return(nil, services.ErrInvalidToken)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "unauthorized", response["error"])
		assert.Equal(t, "Invalid or expired token", response["message"])
		tokens.AssertExpectations(t)
	})

	t.Run("valid API key", func(t *testing.T) {
		_, keys, users, m := newTestAuthMiddleware()

		owner := models.NewUser("bob", "bob@example.com", "hashed")
		key := models.NewAPIKey(owner.ID, "ci key", "hash", "rag_ci_key_1", models.DefaultAPIKeyPermissions(), 500, 0)
		keys.On("Verify", mock.Anything, "rag_ci_key_1_rest_of_key").Return(key, nil)
		users.On("GetByID", mock.Anything, owner.ID).Return(owner, nil)

		handlerCalled := false
		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			assert.Equal(t, owner, UserFromContext(r.Context()))
			assert.Equal(t, key, APIKeyFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.Header.Set("X-API-Key", "rag_ci_key_1_rest_of_key")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
		keys.AssertExpectations(t)
		users.AssertExpectations(t)
	})

	t.Run("invalid API key", func(t *testing.T) {
		_, keys, users, m := newTestAuthMiddleware()

		keys.On("Verify", mock.Anything, "rag_revoked").
			Return(nil, services.ErrInvalidAPIKey)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.Header.Set("X-API-Key", "rag_revoked")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Invalid API key", response["message"])
		keys.AssertExpectations(t)
		users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("API key with deactivated owner", func(t *testing.T) {
		_, keys, users, m := newTestAuthMiddleware()

		owner := models.NewUser("carol", "carol@example.com", "hashed")
		owner.Deactivate()
		key := models.NewAPIKey(owner.ID, "stale key", "hash", "rag_stale_ke", models.DefaultAPIKeyPermissions(), 500, 0)
		keys.On("Verify", mock.Anything, "rag_stale_key_raw").Return(key, nil)
		users.On("GetByID", mock.Anything, owner.ID).Return(owner, nil)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.Header.Set("X-API-Key", "rag_stale_key_raw")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		keys.AssertExpectations(t)
		users.AssertExpectations(t)
	})

	t.Run("owner lookup fails", func(t *testing.T) {
		_, keys, users, m := newTestAuthMiddleware()

		key := models.NewAPIKey(uuid.New(), "orphan key", "hash", "rag_orphan_k", models.DefaultAPIKeyPermissions(), 500, 0)
		keys.On("Verify", mock.Anything, "rag_orphan_key_raw").Return(key, nil)
		users.On("GetByID", mock.Anything, key.UserID).Return(nil, assert.AnError)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.Header.Set("X-API-Key", "rag_orphan_key_raw")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing credentials", func(t *testing.T) {
		tokens, keys, _, m := newTestAuthMiddleware()

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Missing or invalid authorization", response["message"])
		tokens.AssertNotCalled(t, "UserFromToken", mock.Anything, mock.Anything)
		keys.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("bearer token takes precedence over API key", func(t *testing.T) {
		tokens, keys, _, m := newTestAuthMiddleware()

		user := models.NewUser("dave", "dave@example.com", "hashed")
		tokens.On("UserFromToken", mock.Anything, "good-token").Return(user, nil)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Nil(t, APIKeyFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		req.Header.Set("X-API-Key", "rag_ignored_key")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		keys.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Run("admin user", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		admin := models.NewUser("root", "root@example.com", "hashed")
		admin.PromoteToAdmin()

		handlerCalled := false
		handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req = req.WithContext(WithUser(req.Context(), admin))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non-admin user", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		user := models.NewUser("alice", "alice@example.com", "hashed")

		handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req = req.WithContext(WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "forbidden", response["error"])
		assert.Equal(t, "Admin privileges required", response["message"])
	})

	t.Run("admin with privileged API key", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		admin := models.NewUser("root", "root@example.com", "hashed")
		admin.PromoteToAdmin()
		perms := models.APIKeyPermissions{CanUpload: true, CanQuery: true, CanAdmin: true}
		key := models.NewAPIKey(admin.ID, "ops key", "hash", "rag_ops_key1", perms, 1000, 0)

		handlerCalled := false
		handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := WithUser(req.Context(), admin)
		ctx = WithAPIKey(ctx, key)
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("admin with unprivileged API key", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		admin := models.NewUser("root", "root@example.com", "hashed")
		admin.PromoteToAdmin()
		key := models.NewAPIKey(admin.ID, "ci key", "hash", "rag_ci_key_2", models.DefaultAPIKeyPermissions(), 500, 0)

		handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := WithUser(req.Context(), admin)
		ctx = WithAPIKey(ctx, key)
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "API key lacks admin permission", response["message"])
	})

	t.Run("missing user", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequirePermission(t *testing.T) {
	t.Run("token users are not scoped", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		user := models.NewUser("alice", "alice@example.com", "hashed")

		handlerCalled := false
		handler := m.RequirePermission(PermissionUpload)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/documents", nil)
		req = req.WithContext(WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("key with permission", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		user := models.NewUser("bob", "bob@example.com", "hashed")
		key := models.NewAPIKey(user.ID, "ci key", "hash", "rag_ci_key_3", models.DefaultAPIKeyPermissions(), 500, 0)

		handlerCalled := false
		handler := m.RequirePermission(PermissionQuery)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/query", nil)
		ctx := WithUser(req.Context(), user)
		ctx = WithAPIKey(ctx, key)
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("key without permission", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		user := models.NewUser("carol", "carol@example.com", "hashed")
		perms := models.APIKeyPermissions{CanQuery: true}
		key := models.NewAPIKey(user.ID, "query only", "hash", "rag_queryonl", perms, 500, 0)

		handler := m.RequirePermission(PermissionUpload)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/documents", nil)
		ctx := WithUser(req.Context(), user)
		ctx = WithAPIKey(ctx, key)
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "API key lacks upload permission", response["message"])
	})

	t.Run("missing user", func(t *testing.T) {
		_, _, _, m := newTestAuthMiddleware()

		handler := m.RequirePermission(PermissionQuery)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/query", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		want       string
	}{
		{"standard bearer", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"mixed case scheme", "BeArEr abc123", "abc123"},
		{"padded token", "Bearer   abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"bare token", "abc123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			assert.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}

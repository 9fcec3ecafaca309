package person

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mfigueiredo/person-registry/app/observability/metrics"
	"github.com/mfigueiredo/person-registry/internal/api"
)

func TestMain(m *testing.M) {
	// Handlers and the repository record metrics; the noop default meter
	// provider is enough for tests.
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

// MockPersonService is a mock implementation of the PersonService interface
type MockPersonService struct {
	mock.Mock
}

func (m *MockPersonService) Create(ctx context.Context, req *CreatePersonRequest) (*Person, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Person), args.Error(1)
}

func (m *MockPersonService) Get(ctx context.Context, id int64) (*Person, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Person), args.Error(1)
}

func (m *MockPersonService) List(ctx context.Context, filter *Filter) ([]Person, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Person), args.Error(1)
}

func (m *MockPersonService) Update(ctx context.Context, id int64, req *UpdatePersonRequest) (*Person, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Person), args.Error(1)
}

func (m *MockPersonService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPersonService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LoginResponse), args.Error(1)
}

// withURLParam attaches a chi route parameter to the request context so
// handlers can be exercised without a full router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func samplePerson() *Person {
	return &Person{
		ID:           7,
		Name:         "Maria Souza",
		BirthDate:    NewDate(1990, time.March, 10),
		CPF:          "11144477735",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestCreateHandler(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]interface{}{
			"name":      "Maria Souza",
			"birthDate": "1990-03-10",
			"cpf":       "111.444.777-35",
			"password":  "s3cret",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		mockService.On("Create", mock.Anything, mock.AnythingOfType("*person.CreatePersonRequest")).
			Return(samplePerson(), nil).Once()

		handler.Create(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(7), resp["id"])
		assert.Equal(t, "11144477735", resp["cpf"])
		assert.NotContains(t, w.Body.String(), "hash")
		mockService.AssertExpectations(t)
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]interface{}{"name": "Maria"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		mockService.On("Create", mock.Anything, mock.Anything).
			Return(nil, api.NewValidationError(api.FieldErrors{"cpf": "CPF is required"})).Once()

		handler.Create(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		fields := resp["fields"].(map[string]interface{})
		assert.Equal(t, "CPF is required", fields["cpf"])
	})

	t.Run("DuplicateCPF", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]interface{}{
			"name":      "Maria Souza",
			"birthDate": "1990-03-10",
			"cpf":       "11144477735",
			"password":  "s3cret",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		mockService.On("Create", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("cpf already in use: %w", api.ErrConflict)).Once()

		handler.Create(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "CPF already in use")
	})

	t.Run("MalformedBody", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons", bytes.NewBufferString("{not json"))
		w := httptest.NewRecorder()

		handler.Create(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestGetByIDHandler(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/7", nil)
		req = withURLParam(req, "id", "7")
		w := httptest.NewRecorder()

		mockService.On("Get", mock.Anything, int64(7)).Return(samplePerson(), nil).Once()

		handler.GetByID(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"cpf":"11144477735"`)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/999", nil)
		req = withURLParam(req, "id", "999")
		w := httptest.NewRecorder()

		mockService.On("Get", mock.Anything, int64(999)).Return(nil, api.ErrNotFound).Once()

		handler.GetByID(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Person not found")
	})

	t.Run("InvalidID", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/abc", nil)
		req = withURLParam(req, "id", "abc")
		w := httptest.NewRecorder()

		handler.GetByID(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestListHandler(t *testing.T) {
	logger := slog.Default()

	t.Run("FiltersAndPaging", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/persons?name=Silva&birthDate=1990-03-10&pageIndex=2&pageSize=5", nil)
		w := httptest.NewRecorder()

		mockService.On("List", mock.Anything, mock.MatchedBy(func(f *Filter) bool {
			return f.Name == "Silva" &&
				f.BirthDate != nil && f.BirthDate.Format("2006-01-02") == "1990-03-10" &&
				f.PageIndex == 2 && f.PageSize == 5
		})).Return([]Person{*samplePerson()}, nil).Once()

		handler.List(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp []map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp, 1)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidBirthDate", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/persons?birthDate=10-03-1990", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("EmptyResult", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/persons", nil)
		w := httptest.NewRecorder()

		mockService.On("List", mock.Anything, mock.Anything).Return([]Person{}, nil).Once()

		handler.List(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestUpdateHandler(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]interface{}{"name": "New Name"})
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/persons/7", bytes.NewBuffer(body))
		req = withURLParam(req, "id", "7")
		w := httptest.NewRecorder()

		updated := samplePerson()
		updated.Name = "New Name"
		mockService.On("Update", mock.Anything, int64(7), mock.MatchedBy(func(r *UpdatePersonRequest) bool {
			return r.Name != nil && *r.Name == "New Name" && r.CPF == nil
		})).Return(updated, nil).Once()

		handler.Update(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "New Name")
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidID", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]interface{}{"name": "New Name"})
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/persons/999", bytes.NewBuffer(body))
		req = withURLParam(req, "id", "999")
		w := httptest.NewRecorder()

		mockService.On("Update", mock.Anything, int64(999), mock.Anything).
			Return(nil, fmt.Errorf("invalid ID: %w", api.ErrNotFound)).Once()

		handler.Update(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid ID")
	})
}

func TestDeleteHandler(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/persons/7", nil)
		req = withURLParam(req, "id", "7")
		w := httptest.NewRecorder()

		mockService.On("Delete", mock.Anything, int64(7)).Return(nil).Once()

		handler.Delete(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/persons/999", nil)
		req = withURLParam(req, "id", "999")
		w := httptest.NewRecorder()

		mockService.On("Delete", mock.Anything, int64(999)).
			Return(fmt.Errorf("invalid ID: %w", api.ErrNotFound)).Once()

		handler.Delete(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid ID")
	})
}

func TestLoginHandler(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]string{"cpf": "11144477735", "password": "s3cret"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		mockService.On("Login", mock.Anything, mock.MatchedBy(func(r *LoginRequest) bool {
			return r.CPF == "11144477735" && r.Password == "s3cret"
		})).Return(&LoginResponse{
			AccessToken: "token-value",
			ExpiresAt:   time.Now().Add(time.Hour),
			Person:      samplePerson(),
		}, nil).Once()

		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "token-value", resp["accessToken"])
		mockService.AssertExpectations(t)
	})

	t.Run("BadCredentials", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]string{"cpf": "11144477735", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		mockService.On("Login", mock.Anything, mock.Anything).
			Return(nil, api.ErrUnauthenticated).Once()

		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid credentials")
	})

	t.Run("MissingFields", func(t *testing.T) {
		mockService := new(MockPersonService)
		handler := NewPersonHandler(mockService, logger)

		body, _ := json.Marshal(map[string]string{"cpf": "11144477735"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/persons/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		handler.Login(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})
}

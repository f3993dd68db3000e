package projectapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-groupwork/internal/middleware"
	"github.com/noah-isme/gema-groupwork/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type fakeProjectService struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]http.HandlerFunc
}

func newFakeProjectService(t *testing.T) (*fakeProjectService, *Client) {
	t.Helper()

	fake := &fakeProjectService{routes: map[string]http.HandlerFunc{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fake.mu.Lock()
		fake.requests = append(fake.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		handler, ok := fake.routes[r.Method+" "+r.URL.Path]
		fake.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL + "/api/server", APIKey: "secret-key", Timeout: 2 * time.Second}, zerolog.New(io.Discard))
	require.NoError(t, err)
	return fake, client
}

func (f *fakeProjectService) handle(method, path string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func (f *fakeProjectService) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestClientSendsHeadersAndLoadsWorkgroup(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodGet, "/api/server/users/7/workgroups", http.StatusOK, map[string]any{
		"count":   1,
		"results": []map[string]any{{"id": 12}},
	})
	fake.handle(http.MethodGet, "/api/server/workgroups/12", http.StatusOK, map[string]any{
		"id":    12,
		"users": []map[string]any{{"id": 7, "username": "ana"}, {"id": 8, "username": "ben"}},
	})

	ctx := middleware.ContextWithCorrelation(context.Background(), "corr-1")
	workgroup, err := client.GetUserWorkgroup(ctx, 7, "course-v1:Org+X+2024")
	require.NoError(t, err)
	require.NotNil(t, workgroup)
	require.Equal(t, int64(12), workgroup.ID)
	require.Equal(t, []int64{7, 8}, workgroup.UserIDs())

	fake.mu.Lock()
	listing := fake.requests[0]
	fake.mu.Unlock()
	require.Equal(t, "course_id=course-v1%3AOrg%2BX%2B2024", listing.Query)
	require.Equal(t, "secret-key", listing.Header.Get(APIKeyHeader))
	require.Equal(t, "application/json", listing.Header.Get("Content-Type"))
	require.Equal(t, "corr-1", listing.Header.Get("X-Correlation-ID"))
}

func TestClientReturnsNilWorkgroupWhenUserHasNone(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodGet, "/api/server/users/7/workgroups", http.StatusOK, []any{})

	workgroup, err := client.GetUserWorkgroup(context.Background(), 7, "course")
	require.NoError(t, err)
	require.Nil(t, workgroup)
}

func TestClientWrapsHTTPErrors(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodPost, "/api/server/courses/course/completions", http.StatusConflict, map[string]any{
		"detail": "completion already exists",
	})

	err := client.MarkComplete(context.Background(), models.Completion{UserID: 1, CourseID: "course", ContentID: "act"})
	require.Error(t, err)
	require.True(t, IsConflict(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Code)
	require.Equal(t, "completion already exists", apiErr.Message)
	require.Equal(t, "completion already exists", apiErr.Body["detail"])
}

func TestClientWrapsTransportErrors(t *testing.T) {
	client, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zerolog.New(io.Discard))
	require.NoError(t, err)

	_, err = client.GetWorkgroup(context.Background(), 1)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Zero(t, apiErr.Code)
	require.NotNil(t, apiErr.Unwrap())
}

func TestClientReviewItemLifecycle(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodGet, "/api/server/workgroups/3/workgroup_reviews", http.StatusOK, []map[string]any{
		{"id": 1, "reviewer": "5", "workgroup": 3, "question": "q1", "answer": "80", "content_id": "act"},
	})
	fake.handle(http.MethodPost, "/api/server/workgroup_reviews/", http.StatusCreated, map[string]any{"id": 2})
	fake.handle(http.MethodPut, "/api/server/workgroup_reviews/1", http.StatusOK, map[string]any{"id": 1})
	fake.handle(http.MethodDelete, "/api/server/workgroup_reviews/1", http.StatusNoContent, nil)

	items, err := client.GetReviewItems(context.Background(), WorkgroupReviews, 3, "act")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(5), items[0].ReviewerID())
	require.Equal(t, int64(3), items[0].WorkgroupID())
	require.Equal(t, "content_id=act", fake.last().Query)

	workgroupID := int64(3)
	created, err := client.CreateReviewItem(context.Background(), WorkgroupReviews, models.ReviewItem{
		Reviewer: 5, Workgroup: &workgroupID, Question: "q2", Answer: "60", ContentID: "act",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), created.ID)
	require.JSONEq(t, `{"reviewer":5,"workgroup":3,"question":"q2","answer":"60","content_id":"act"}`, fake.last().Body)

	_, err = client.UpdateReviewItem(context.Background(), WorkgroupReviews, 1, models.ReviewItem{Reviewer: 5, Question: "q1", Answer: "90"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, fake.last().Method)

	require.NoError(t, client.DeleteReviewItem(context.Background(), WorkgroupReviews, 1))
	require.Equal(t, http.MethodDelete, fake.last().Method)
}

func TestClientCompletionsFollowsNextCursor(t *testing.T) {
	fake, client := newFakeProjectService(t)

	var serverURL string
	fake.mu.Lock()
	fake.routes[http.MethodGet+" /api/server/courses/course/completions"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"next":    nil,
				"results": []map[string]any{{"user_id": 3, "course_id": "course", "content_id": "act"}},
			})
			return
		}
		serverURL = "http://" + r.Host
		_ = json.NewEncoder(w).Encode(map[string]any{
			"next": serverURL + "/api/server/courses/course/completions?page=2",
			"results": []map[string]any{
				{"user_id": 1, "course_id": "course", "content_id": "act"},
				{"user_id": 2, "course_id": "course", "content_id": "act"},
			},
		})
	}
	fake.mu.Unlock()

	users := make([]int64, 0)
	for completion, err := range client.Completions(context.Background(), "course", CompletionFilter{ContentID: "act"}) {
		require.NoError(t, err)
		users = append(users, completion.UserID)
	}
	require.Equal(t, []int64{1, 2, 3}, users)
}

func TestClientCompletionsStopsEarly(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodGet, "/api/server/courses/course/completions", http.StatusOK, map[string]any{
		"next":    "/api/server/courses/course/completions?page=2",
		"results": []map[string]any{{"user_id": 1}, {"user_id": 2}},
	})

	for range client.Completions(context.Background(), "course", CompletionFilter{}) {
		break
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 1)
}

func TestClientListsFollowNextCursor(t *testing.T) {
	fake, client := newFakeProjectService(t)

	fake.mu.Lock()
	fake.routes[http.MethodGet+" /api/server/workgroups/9/submissions"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"next":    "",
				"results": []map[string]any{{"id": 3, "document_id": "slides", "workgroup": 9}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count": 3,
			"next":  "/api/server/workgroups/9/submissions?page=2",
			"results": []map[string]any{
				{"id": 1, "document_id": "report", "workgroup": 9},
				{"id": 2, "document_id": "notes", "workgroup": 9},
			},
		})
	}
	fake.mu.Unlock()

	submissions, err := client.GetWorkgroupSubmissions(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, submissions, 3)
	require.Equal(t, "report", submissions[0].UploadID)
	require.Equal(t, "slides", submissions[2].UploadID)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 2)
	require.Equal(t, "page=2", fake.requests[1].Query)
}

func TestClientListsStopOnPageError(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodGet, "/api/server/workgroups/9/submissions", http.StatusOK, map[string]any{
		"next":    "/api/server/missing?page=2",
		"results": []map[string]any{{"id": 1, "document_id": "report"}},
	})

	_, err := client.GetWorkgroupSubmissions(context.Background(), 9)
	require.Error(t, err)
}

func TestClientDryRunShortCircuits(t *testing.T) {
	client, err := New(Config{DryRun: true}, zerolog.New(io.Discard))
	require.NoError(t, err)

	workgroup, err := client.GetWorkgroup(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, int64(9), workgroup.ID)
	require.Empty(t, workgroup.Users)

	submissions, err := client.GetWorkgroupSubmissions(context.Background(), 9)
	require.NoError(t, err)
	require.Empty(t, submissions)

	require.NoError(t, client.PostGrade(context.Background(), 9, models.GroupGrade{Grade: 50}))
}

func TestClientPreferencesAcceptNonStringValues(t *testing.T) {
	fake, client := newFakeProjectService(t)
	fake.handle(http.MethodGet, "/api/server/users/4/preferences", http.StatusOK, map[string]any{
		models.TAReviewWorkgroupPreference: 12,
		"pref-lang":                        "en",
	})

	prefs, err := client.GetUserPreferences(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "12", prefs[models.TAReviewWorkgroupPreference])
	require.Equal(t, "en", prefs["pref-lang"])
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, zerolog.New(io.Discard))
	require.Error(t, err)
}

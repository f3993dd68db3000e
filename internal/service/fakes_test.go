package service

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/activityxml"
	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type postedGrade struct {
	workgroupID int64
	grade       models.GroupGrade
}

// fakeProjectAPI is an in-memory project service.
type fakeProjectAPI struct {
	mu sync.Mutex

	workgroups      map[int64]models.Workgroup
	userWorkgroups  map[int64]int64
	preferences     map[int64]models.UserPreferences
	roles           map[int64][]models.CourseRole
	projects        map[int64]models.ProjectDetails
	userDetails     map[int64]models.UserDetails
	organizations   map[int64][]models.Organization
	userGroups      map[int64][]models.ReviewAssignmentGroup
	groupWorkgroups map[int64][]models.Workgroup
	groupUsers      map[int64][]models.WorkgroupUser
	workgroupGroups map[int64][]models.ReviewAssignmentGroup

	items       map[projectapi.ReviewKind][]models.ReviewItem
	submissions map[int64][]models.Submission
	completions []models.Completion
	grades      []postedGrade

	nextID int64
	clock  time.Time
	calls  map[string]int
}

func newFakeProjectAPI() *fakeProjectAPI {
	return &fakeProjectAPI{
		workgroups:      map[int64]models.Workgroup{},
		userWorkgroups:  map[int64]int64{},
		preferences:     map[int64]models.UserPreferences{},
		roles:           map[int64][]models.CourseRole{},
		projects:        map[int64]models.ProjectDetails{},
		userDetails:     map[int64]models.UserDetails{},
		organizations:   map[int64][]models.Organization{},
		userGroups:      map[int64][]models.ReviewAssignmentGroup{},
		groupWorkgroups: map[int64][]models.Workgroup{},
		groupUsers:      map[int64][]models.WorkgroupUser{},
		workgroupGroups: map[int64][]models.ReviewAssignmentGroup{},
		items:           map[projectapi.ReviewKind][]models.ReviewItem{},
		submissions:     map[int64][]models.Submission{},
		clock:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		calls:           map[string]int{},
	}
}

func (f *fakeProjectAPI) addWorkgroup(id int64, users ...int64) models.Workgroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	wg := models.Workgroup{ID: id, Name: fmt.Sprintf("Group %d", id), Users: []models.WorkgroupUser{}}
	for _, u := range users {
		wg.Users = append(wg.Users, models.WorkgroupUser{ID: u, Username: fmt.Sprintf("user%d", u)})
		f.userWorkgroups[u] = id
	}
	f.workgroups[id] = wg
	return wg
}

func (f *fakeProjectAPI) addItem(kind projectapi.ReviewKind, item models.ReviewItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	item.ID = f.nextID
	f.items[kind] = append(f.items[kind], item)
}

func (f *fakeProjectAPI) completionUsers(stageID string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]int64, 0)
	for _, c := range f.completions {
		if c.Stage != nil && *c.Stage == stageID {
			users = append(users, c.UserID)
		}
	}
	return users
}

func (f *fakeProjectAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProjectAPI) call(name string) {
	f.calls[name]++
}

func notFound(what string) error {
	return &projectapi.APIError{Code: http.StatusNotFound, Message: what + " not found"}
}

func (f *fakeProjectAPI) GetUserWorkgroup(_ context.Context, userID int64, _ string) (*models.Workgroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetUserWorkgroup")
	id, ok := f.userWorkgroups[userID]
	if !ok {
		return nil, nil
	}
	wg := f.workgroups[id]
	return &wg, nil
}

func (f *fakeProjectAPI) GetWorkgroup(_ context.Context, workgroupID int64) (*models.Workgroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetWorkgroup")
	wg, ok := f.workgroups[workgroupID]
	if !ok {
		return nil, notFound("workgroup")
	}
	return &wg, nil
}

func (f *fakeProjectAPI) GetWorkgroupSubmissions(_ context.Context, workgroupID int64) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetWorkgroupSubmissions")
	return append([]models.Submission(nil), f.submissions[workgroupID]...), nil
}

func (f *fakeProjectAPI) CreateSubmission(_ context.Context, payload models.SubmissionCreate) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("CreateSubmission")
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	submission := models.Submission{
		ID:               f.nextID,
		UploadID:         payload.UploadID,
		DocumentURL:      payload.DocumentURL,
		DocumentFilename: payload.DocumentFilename,
		MimeType:         payload.MimeType,
		User:             models.UserRef(payload.User),
		Workgroup:        payload.Workgroup,
		Created:          f.clock,
		Modified:         f.clock,
	}
	f.submissions[payload.Workgroup] = append(f.submissions[payload.Workgroup], submission)
	return &submission, nil
}

func (f *fakeProjectAPI) PostGrade(_ context.Context, workgroupID int64, grade models.GroupGrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("PostGrade")
	f.grades = append(f.grades, postedGrade{workgroupID: workgroupID, grade: grade})
	return nil
}

func (f *fakeProjectAPI) GetReviewItems(_ context.Context, kind projectapi.ReviewKind, workgroupID int64, contentID string) ([]models.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetReviewItems")
	out := make([]models.ReviewItem, 0)
	for _, item := range f.items[kind] {
		if item.WorkgroupID() == workgroupID && item.ContentID == contentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeProjectAPI) CreateReviewItem(_ context.Context, kind projectapi.ReviewKind, item models.ReviewItem) (*models.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("CreateReviewItem")
	f.nextID++
	item.ID = f.nextID
	f.items[kind] = append(f.items[kind], item)
	return &item, nil
}

func (f *fakeProjectAPI) UpdateReviewItem(_ context.Context, kind projectapi.ReviewKind, itemID int64, item models.ReviewItem) (*models.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("UpdateReviewItem")
	for i := range f.items[kind] {
		if f.items[kind][i].ID == itemID {
			item.ID = itemID
			f.items[kind][i] = item
			return &item, nil
		}
	}
	return nil, notFound("review item")
}

func (f *fakeProjectAPI) DeleteReviewItem(_ context.Context, kind projectapi.ReviewKind, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("DeleteReviewItem")
	kept := f.items[kind][:0]
	for _, item := range f.items[kind] {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	f.items[kind] = kept
	return nil
}

func (f *fakeProjectAPI) GetUserReviewAssignmentGroups(_ context.Context, userID int64, _, xblockID string) ([]models.ReviewAssignmentGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReviewAssignmentGroup, 0)
	for _, group := range f.userGroups[userID] {
		if group.Data.XBlockID == xblockID {
			out = append(out, group)
		}
	}
	return out, nil
}

func (f *fakeProjectAPI) GetReviewAssignmentWorkgroups(_ context.Context, assignmentID int64) ([]models.Workgroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupWorkgroups[assignmentID], nil
}

func (f *fakeProjectAPI) GetReviewAssignmentUsers(_ context.Context, assignmentID int64) ([]models.WorkgroupUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupUsers[assignmentID], nil
}

func (f *fakeProjectAPI) GetWorkgroupReviewAssignmentGroups(_ context.Context, workgroupID int64) ([]models.ReviewAssignmentGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workgroupGroups[workgroupID], nil
}

func (f *fakeProjectAPI) GetProject(_ context.Context, projectID int64) (*models.ProjectDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetProject")
	project, ok := f.projects[projectID]
	if !ok {
		return nil, notFound("project")
	}
	return &project, nil
}

func (f *fakeProjectAPI) GetUserDetails(_ context.Context, userID int64) (*models.UserDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetUserDetails")
	details, ok := f.userDetails[userID]
	if !ok {
		return nil, notFound("user")
	}
	return &details, nil
}

func (f *fakeProjectAPI) GetUserPreferences(_ context.Context, userID int64) (models.UserPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetUserPreferences")
	prefs := models.UserPreferences{}
	for k, v := range f.preferences[userID] {
		prefs[k] = v
	}
	return prefs, nil
}

func (f *fakeProjectAPI) GetUserOrganizations(_ context.Context, userID int64) ([]models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.organizations[userID], nil
}

func (f *fakeProjectAPI) GetUserRoles(_ context.Context, userID int64, courseID string) ([]models.CourseRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetUserRoles")
	out := make([]models.CourseRole, 0)
	for _, role := range f.roles[userID] {
		if role.CourseID == courseID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fakeProjectAPI) MarkComplete(_ context.Context, completion models.Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("MarkComplete")
	for _, existing := range f.completions {
		if existing.UserID == completion.UserID && existing.ContentID == completion.ContentID && sameStage(existing.Stage, completion.Stage) {
			return &projectapi.APIError{Code: http.StatusConflict, Message: "duplicate completion"}
		}
	}
	f.completions = append(f.completions, completion)
	return nil
}

func sameStage(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeProjectAPI) Completions(_ context.Context, courseID string, filter projectapi.CompletionFilter) iter.Seq2[models.Completion, error] {
	f.mu.Lock()
	snapshot := append([]models.Completion(nil), f.completions...)
	f.mu.Unlock()

	return func(yield func(models.Completion, error) bool) {
		for _, c := range snapshot {
			if c.CourseID != courseID {
				continue
			}
			if len(filter.UserIDs) > 0 && !containsID(filter.UserIDs, c.UserID) {
				continue
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// memStageStates is an in-memory stage state repository.
type memStageStates struct {
	mu     sync.Mutex
	states map[models.StageKey]models.StageUserState
}

func newMemStageStates() *memStageStates {
	return &memStageStates{states: map[models.StageKey]models.StageUserState{}}
}

func (m *memStageStates) Get(_ context.Context, key models.StageKey) (models.StageUserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		return models.StageUserState{UserID: key.UserID, CourseID: key.CourseID, ActivityID: key.ActivityID, StageID: key.StageID}, nil
	}
	return state, nil
}

func (m *memStageStates) ListForActivity(_ context.Context, userID int64, courseID, activityID string) ([]models.StageUserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StageUserState, 0)
	for key, state := range m.states {
		if key.UserID == userID && key.CourseID == courseID && key.ActivityID == activityID {
			out = append(out, state)
		}
	}
	return out, nil
}

func (m *memStageStates) upsert(key models.StageKey, apply func(*models.StageUserState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		state = models.StageUserState{UserID: key.UserID, CourseID: key.CourseID, ActivityID: key.ActivityID, StageID: key.StageID}
	}
	apply(&state)
	m.states[key] = state
}

func (m *memStageStates) MarkVisited(_ context.Context, key models.StageKey, _ time.Time) error {
	m.upsert(key, func(s *models.StageUserState) { s.Visited = true })
	return nil
}

func (m *memStageStates) MarkCompleted(_ context.Context, key models.StageKey, at time.Time) error {
	m.upsert(key, func(s *models.StageUserState) {
		s.Completed = true
		if s.CompletedAt == nil {
			s.CompletedAt = &at
		}
	})
	return nil
}

// staticCatalog serves a fixed project.
type staticCatalog struct {
	project models.Project
}

func (c staticCatalog) Project(_ context.Context, courseID, projectID string) (*models.Project, error) {
	if projectID != c.project.ID {
		return nil, ErrProjectNotFound
	}
	project := c.project
	project.CourseID = courseID
	return &project, nil
}

func (c staticCatalog) Import(context.Context, string, string, []byte) (dto.ProjectDefinitionResponse, error) {
	return dto.ProjectDefinitionResponse{}, nil
}

func (c staticCatalog) Export(context.Context, string, string, activityxml.Format) ([]byte, error) {
	return nil, nil
}

func (c staticCatalog) List(context.Context, string) ([]dto.ProjectDefinitionResponse, error) {
	return nil, nil
}

func (c staticCatalog) Delete(context.Context, string, string) error {
	return nil
}

// recordingNotifications captures notifications instead of publishing them.
type recordingNotifications struct {
	mu       sync.Mutex
	graded   [][]int64
	uploaded [][]int64
}

func (r *recordingNotifications) GradesPosted(_ context.Context, _ string, _ *models.Activity, _ int64, recipients []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graded = append(r.graded, recipients)
}

func (r *recordingNotifications) FileUploaded(_ context.Context, _ string, _ *models.Activity, _ int64, _ int64, _ string, recipients []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploaded = append(r.uploaded, recipients)
}

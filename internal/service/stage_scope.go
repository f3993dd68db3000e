package service

import (
	"time"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// stageScope is what a single request knows about one activity for one viewer. A stage observed
// as completed stays completed for the lifetime of the scope.
type stageScope struct {
	courseID string
	project  *models.Project
	activity *models.Activity
	viewer   Viewer
	now      time.Time

	local  map[string]models.StageUserState
	states map[string]models.StageState
}

func newStageScope(courseID string, project *models.Project, activity *models.Activity, viewer Viewer, now time.Time, stored []models.StageUserState) *stageScope {
	local := make(map[string]models.StageUserState, len(stored))
	for _, state := range stored {
		local[state.StageID] = state
	}
	return &stageScope{
		courseID: courseID,
		project:  project,
		activity: activity,
		viewer:   viewer,
		now:      now,
		local:    local,
		states:   make(map[string]models.StageState),
	}
}

func (s *stageScope) key(stageID string) models.StageKey {
	return models.StageKey{
		UserID:     s.viewer.UserID,
		CourseID:   s.courseID,
		ActivityID: s.activity.ContentID,
		StageID:    stageID,
	}
}

func (s *stageScope) stored(stageID string) models.StageUserState {
	return s.local[stageID]
}

func (s *stageScope) markVisited(stageID string) {
	state := s.local[stageID]
	state.StageID = stageID
	state.Visited = true
	s.local[stageID] = state
}

func (s *stageScope) markCompleted(stageID string) {
	state := s.local[stageID]
	state.StageID = stageID
	state.Completed = true
	completedAt := s.now
	state.CompletedAt = &completedAt
	s.local[stageID] = state
}

// cached returns a previously observed completed state.
func (s *stageScope) cached(stageID string) (models.StageState, bool) {
	state, ok := s.states[stageID]
	return state, ok && state == models.StageStateCompleted
}

// remember records an observed state; a completed stage never regresses.
func (s *stageScope) remember(stageID string, state models.StageState) models.StageState {
	if s.states[stageID] == models.StageStateCompleted {
		return models.StageStateCompleted
	}
	s.states[stageID] = state
	return state
}

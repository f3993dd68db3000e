package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-groupwork/internal/cache"
	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/events"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/observability"
	"github.com/noah-isme/gema-groupwork/pkg/filestore"
)

const (
	// DefaultMaxUploadBytes bounds a single deliverable.
	DefaultMaxUploadBytes int64 = 25 << 20
	userDetailsTTL              = 10 * time.Minute
	uploadRoot                  = "group_work"
)

// UploadRequest is one file uploaded into a submission slot.
type UploadRequest struct {
	CourseID string
	Activity *models.Activity
	Stage    *models.Stage
	Viewer   Viewer
	UploadID string
	Filename string
	Content  io.Reader
}

// UploadResult describes what an upload changed.
type UploadResult struct {
	Submission models.Submission
	Path       string
	// Stored is false when identical bytes were already present at the content-addressed path.
	Stored bool
	State  models.StageState
}

// SubmissionTracker tracks uploads per workgroup and drives completion of submission stages.
type SubmissionTracker interface {
	Latest(ctx context.Context, workgroupID int64) (map[string]models.Submission, error)
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
	Links(ctx context.Context, activity *models.Activity, workgroupID int64) ([]dto.SubmissionResponse, error)
}

type submissionTracker struct {
	api           ProjectAPI
	store         filestore.Store
	completions   CompletionPublisher
	emitter       events.Emitter
	notifications NotificationService
	memo          cache.Store
	maxBytes      int64
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewSubmissionTracker constructs the tracker. maxBytes <= 0 selects DefaultMaxUploadBytes.
func NewSubmissionTracker(api ProjectAPI, store filestore.Store, completions CompletionPublisher, emitter events.Emitter, notifications NotificationService, memo cache.Store, maxBytes int64, logger zerolog.Logger) SubmissionTracker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if memo == nil {
		memo = cache.NewMemory()
	}
	return &submissionTracker{
		api:           api,
		store:         store,
		completions:   completions,
		emitter:       emitter,
		notifications: notifications,
		memo:          memo,
		maxBytes:      maxBytes,
		logger:        logger.With().Str("component", "submission_tracker").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-groupwork/internal/service/submission"),
	}
}

// Latest reduces every submission of the workgroup to the newest one per upload id.
func (t *submissionTracker) Latest(ctx context.Context, workgroupID int64) (map[string]models.Submission, error) {
	latest := make(map[string]models.Submission)
	if workgroupID == 0 {
		return latest, nil
	}

	submissions, err := t.api.GetWorkgroupSubmissions(ctx, workgroupID)
	if err != nil {
		return nil, err
	}
	for _, submission := range submissions {
		current, ok := latest[submission.UploadID]
		if !ok || submission.NewerThan(current) {
			latest[submission.UploadID] = submission
		}
	}
	return latest, nil
}

func (t *submissionTracker) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	workgroup := req.Viewer.Workgroup
	attrs := []attribute.KeyValue{
		attribute.String("submission.upload_id", req.UploadID),
		attribute.Int64("submission.workgroup_id", workgroup.ID),
	}
	ctx, span := t.tracer.Start(ctx, "submissions.upload", trace.WithAttributes(attrs...))
	defer span.End()

	data, err := io.ReadAll(io.LimitReader(req.Content, t.maxBytes+1))
	if err != nil {
		span.RecordError(err)
		observability.SubmissionsUploaded().WithLabelValues("error").Inc()
		return UploadResult{}, err
	}
	if int64(len(data)) > t.maxBytes {
		observability.SubmissionsUploaded().WithLabelValues("too_large").Inc()
		return UploadResult{}, ErrUploadTooLarge
	}

	filename := cleanFilename(req.Filename)
	sum := sha1.Sum(data)
	location := path.Join(uploadRoot, fmt.Sprintf("%d", workgroup.ID), hex.EncodeToString(sum[:]), filename)

	exists, err := t.store.Exists(ctx, location)
	if err != nil {
		span.RecordError(err)
		observability.SubmissionsUploaded().WithLabelValues("error").Inc()
		return UploadResult{}, err
	}

	documentURL := t.store.URL(location)
	stored := false
	if !exists {
		documentURL, err = t.store.Save(ctx, location, bytes.NewReader(data))
		if err != nil {
			span.RecordError(err)
			observability.SubmissionsUploaded().WithLabelValues("error").Inc()
			return UploadResult{}, err
		}
		stored = true
	}

	submission, err := t.api.CreateSubmission(ctx, models.SubmissionCreate{
		UploadID:         req.UploadID,
		DocumentURL:      documentURL,
		DocumentFilename: filename,
		MimeType:         mimetype.Detect(data).String(),
		User:             req.Viewer.UserID,
		Workgroup:        workgroup.ID,
	})
	if err != nil {
		span.RecordError(err)
		observability.SubmissionsUploaded().WithLabelValues("error").Inc()
		return UploadResult{}, err
	}
	observability.SubmissionsUploaded().WithLabelValues("success").Inc()

	latest, err := t.Latest(ctx, workgroup.ID)
	if err != nil {
		return UploadResult{}, err
	}
	state := SubmissionStatus(req.Stage.UploadIDs(), latest)
	if state == models.StageStateCompleted {
		if err := t.completions.PublishForMembers(ctx, req.CourseID, req.Activity.ContentID, req.Stage.ID, workgroup); err != nil {
			return UploadResult{}, err
		}
	}

	t.emitter.Emit(ctx, events.Event{
		Name:      events.ReceivedSubmission,
		UserID:    req.Viewer.UserID,
		CourseID:  req.CourseID,
		ContentID: req.Activity.ContentID,
		Payload: map[string]any{
			"upload_id":         req.UploadID,
			"document_url":      documentURL,
			"document_filename": filename,
			"workgroup_id":      workgroup.ID,
			"stage_id":          req.Stage.ID,
		},
	})

	recipients := make([]int64, 0, len(workgroup.Users))
	for _, member := range workgroup.Teammates(req.Viewer.UserID) {
		recipients = append(recipients, member.ID)
	}
	t.notifications.FileUploaded(ctx, req.CourseID, req.Activity, workgroup.ID, req.Viewer.UserID, filename, recipients)

	t.logger.Info().
		Int64("workgroup_id", workgroup.ID).
		Str("upload_id", req.UploadID).
		Str("path", location).
		Bool("stored", stored).
		Str("state", string(state)).
		Msg("submission uploaded")

	result := UploadResult{Path: location, Stored: stored, State: state}
	if submission != nil {
		result.Submission = *submission
	}
	return result, nil
}

// Links lists the latest deliverables of a workgroup across every submission stage of the activity.
func (t *submissionTracker) Links(ctx context.Context, activity *models.Activity, workgroupID int64) ([]dto.SubmissionResponse, error) {
	latest, err := t.Latest(ctx, workgroupID)
	if err != nil {
		return nil, err
	}

	links := make([]dto.SubmissionResponse, 0, len(latest))
	for _, stage := range activity.Stages {
		if stage.Kind != models.StageKindSubmission {
			continue
		}
		for _, slot := range stage.Submissions {
			submission, ok := latest[slot.UploadID]
			if !ok {
				continue
			}
			link := dto.NewSubmissionResponse(submission)
			link.Title = slot.DisplayName
			if uploader, err := t.uploader(ctx, submission.User.Int64()); err != nil {
				t.logger.Warn().Err(err).Int64("user_id", submission.User.Int64()).Msg("failed to load uploader details")
			} else {
				link.Uploader = uploader
			}
			links = append(links, link)
		}
	}
	return links, nil
}

func (t *submissionTracker) uploader(ctx context.Context, userID int64) (*dto.UploaderResponse, error) {
	if userID == 0 {
		return nil, nil
	}

	key := fmt.Sprintf("uploader:%d", userID)
	var cached dto.UploaderResponse
	if ok, err := t.memo.Get(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	details, err := t.api.GetUserDetails(ctx, userID)
	if err != nil {
		return nil, err
	}
	organizations, err := t.api.GetUserOrganizations(ctx, userID)
	if err != nil {
		return nil, err
	}

	uploader := dto.UploaderResponse{ID: userID, Organizations: make([]string, 0, len(organizations))}
	if details != nil {
		uploader.Name = details.DisplayName()
	}
	for _, org := range organizations {
		name := org.DisplayName
		if name == "" {
			name = org.Name
		}
		uploader.Organizations = append(uploader.Organizations, name)
	}

	if err := t.memo.Set(ctx, key, uploader, userDetailsTTL); err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("failed to memoize uploader")
	}
	return &uploader, nil
}

func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}

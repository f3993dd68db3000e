package models

import "time"

// Submission is an uploaded deliverable recorded by the project service.
// UploadID is stored remotely as document_id.
type Submission struct {
	ID               int64     `json:"id,omitempty"`
	UploadID         string    `json:"document_id"`
	DocumentURL      string    `json:"document_url"`
	DocumentFilename string    `json:"document_filename"`
	MimeType         string    `json:"document_mime_type,omitempty"`
	User             UserRef   `json:"user"`
	Workgroup        int64     `json:"workgroup"`
	Created          time.Time `json:"created,omitempty"`
	Modified         time.Time `json:"modified"`
}

// NewerThan reports whether s supersedes other for the same upload slot.
func (s Submission) NewerThan(other Submission) bool {
	return s.Modified.After(other.Modified)
}

// SubmissionCreate is the payload posted to record a new upload.
type SubmissionCreate struct {
	UploadID         string `json:"document_id"`
	DocumentURL      string `json:"document_url"`
	DocumentFilename string `json:"document_filename"`
	MimeType         string `json:"document_mime_type"`
	User             int64  `json:"user"`
	Workgroup        int64  `json:"workgroup"`
}

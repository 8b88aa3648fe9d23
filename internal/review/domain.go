// Package review implements the admin gate for manually uploaded catalogs:
// validate on submission, hold pending, and route approved payloads into the
// same reconciler the scheduled sync uses.
package review

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Upload decision states.
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadApproved UploadStatus = "approved"
	UploadRejected UploadStatus = "rejected"
)

// CatalogUpload is one manually submitted catalog awaiting a decision. The
// status is flipped exactly once; approved and rejected are terminal.
type CatalogUpload struct {
	ID         uuid.UUID
	MerchantID int64
	Status     UploadStatus
	PayloadKey string
	Notes      string
	CreatedAt  time.Time
	DecidedAt  *time.Time
}

var (
	// ErrNotFound indicates the upload does not exist.
	ErrNotFound = errors.New("review: upload not found")
	// ErrAlreadyDecided indicates a second decision on a terminal upload.
	ErrAlreadyDecided = errors.New("review: upload already decided")
	// ErrPayloadMissing indicates the stored payload expired or was removed.
	ErrPayloadMissing = errors.New("review: stored payload missing")
)

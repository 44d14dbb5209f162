package repository

import (
	"time"

	"github.com/molpadia/molpareplay/internal/domain/entity"
)

type Uploader interface {
	// Initiates a multipart upload and return an upload ID from the remote storage.
	CreateMultipart(key, contentType string) (string, error)
	// Get a pre-signed URL the client uploads the given part to.
	PresignPart(key, uploadId string, partNumber int64, ttl time.Duration) (string, error)
	// Upload a file part to the remote storage.
	UploadPart(key, uploadId string, body []byte, partNumber int64) (*entity.Part, error)
	// Mark the multipart upload as completed for the remote storage.
	CompleteMultipart(key, uploadId string, parts []*entity.Part) error
	// Abort the multipart upload and release the uploaded parts.
	AbortMultipart(key, uploadId string) error
}

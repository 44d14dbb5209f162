package entity

import "time"

const (
	UploadedStatusUploading = "UPLOADING"
	UploadedStatusCompleted = "UPLOADED"
	UploadedStatusCancelled = "CANCELLED"
	UploadedStatusFailed    = "FAILED"
)

// The entity of an uploaded gameplay video.
type Video struct {
	Id          string
	Key         string
	Filename    string
	ContentType string
	Size        int64
	Status      string
	CreatedAt   int64
	Upload      *UploadProgress
}

func NewVideo(id, key, filename, contentType string, size int64) *Video {
	return &Video{
		Id:          id,
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		Status:      UploadedStatusUploading,
		CreatedAt:   time.Now().Unix(),
	}
}

// Attach a multipart upload session to the video.
func (v *Video) NewUpload(id string, partSize, totalParts int64) {
	v.Upload = &UploadProgress{Id: id, PartSize: partSize, TotalParts: totalParts}
}

// Add a confirmed file part to the video, replacing a part with the same number.
func (v *Video) AddUploadPart(part *Part) {
	for i, p := range v.Upload.Parts {
		if p.PartNumber == part.PartNumber {
			v.Upload.Parts[i] = part
			return
		}
	}
	v.Upload.Parts = append(v.Upload.Parts, part)
}

// Mark the upload status to the video.
func (v *Video) SetStatus(status string) {
	v.Status = status
}

// Determine whether the video still accepts parts.
func (v *Video) IsUploading() bool {
	return v.Status == UploadedStatusUploading && v.Upload != nil
}

// Get the expected byte length of the given part number, or zero if out of range.
func (v *Video) PartLength(partNumber int64) int64 {
	if v.Upload == nil || partNumber < 1 || partNumber > v.Upload.TotalParts {
		return 0
	}
	start := (partNumber - 1) * v.Upload.PartSize
	if remaining := v.Size - start; remaining < v.Upload.PartSize {
		return remaining
	}
	return v.Upload.PartSize
}

// The upload session of a multipart upload.
type UploadProgress struct {
	Id         string  // The upload identifier in multipart upload.
	PartSize   int64   // The size of every part except the last one.
	TotalParts int64   // The number of parts the file is split into.
	Parts      []*Part // A set of confirmed parts in multipart upload.
}

// The part portion of video data.
type Part struct {
	ETag       string // Entity tag for the uploaded object.
	PartNumber int64  // Part number that identifies the part.
}

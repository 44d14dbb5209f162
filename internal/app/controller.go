package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/molpadia/molpareplay/internal/domain/entity"
	"github.com/molpadia/molpareplay/internal/domain/repository"
	"github.com/molpadia/molpareplay/internal/httprange"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	MinUploadPartSize     = 5 << 20
	MaxUploadPartSize     = 64 << 20
	DefaultUploadPartSize = MinUploadPartSize
	MaxUploadParts        = 10000
	DefaultMaxFileSize    = 500 << 20
	DefaultPartURLTTL     = time.Hour
)

type Config struct {
	// Largest accepted video in bytes.
	MaxFileSize int64
	// Lifetime of pre-signed part URLs.
	PartURLTTL time.Duration
	// When set, part URLs point at this server's proxy endpoint instead of
	// pre-signed storage URLs.
	ProxyBaseURL string
	// Bearer token required on the API routes. Proxied part uploads are
	// authorized by their upload session instead.
	Token string
}

func (c Config) withDefaults() Config {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.PartURLTTL <= 0 {
		c.PartURLTTL = DefaultPartURLTTL
	}
	c.ProxyBaseURL = strings.TrimRight(c.ProxyBaseURL, "/")
	return c
}

type controller struct {
	videos   repository.VideoRepository
	uploader repository.Uploader
	cfg      Config
}

func newController(videos repository.VideoRepository, uploader repository.Uploader, cfg Config) *controller {
	return &controller{videos, uploader, cfg.withDefaults()}
}

// Get the video by the video ID.
func (c *controller) getVideo(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]
	if id == "" {
		return &AppError{http.StatusBadRequest, "video ID must be required"}
	}
	video, err := c.videos.GetById(id)
	if err != nil {
		return fmt.Errorf("failed to retrieve the video: %v", err)
	}
	if video == nil {
		return &AppError{http.StatusNotFound, "video ID does not exist"}
	}
	return replyJSON(w, VideoResponse{
		Id:          video.Id,
		Filename:    video.Filename,
		ContentType: video.ContentType,
		Size:        video.Size,
		Status:      video.Status,
		CreatedAt:   video.CreatedAt,
	}, http.StatusOK)
}

// Initiate an upload session.
// Creates a multipart upload and returns one destination URL per part.
func (c *controller) createUpload(w http.ResponseWriter, r *http.Request) error {
	var data InitiateUploadRequest
	if err := parseJSON(w, r, &data); err != nil {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("cannot parse JSON from request body: %v", err)}
	}
	if !strings.HasPrefix(data.ContentType, "video/") {
		return &AppError{http.StatusBadRequest, "content type must be a video"}
	}
	if data.TotalSize <= 0 || data.TotalSize > c.cfg.MaxFileSize {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("size must between 1 and %d bytes", c.cfg.MaxFileSize)}
	}
	partSize := normalizePartSize(data.PartSize)
	totalParts := httprange.Count(data.TotalSize, partSize)
	if totalParts > MaxUploadParts {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("file must not be split into more than %d parts", MaxUploadParts)}
	}

	id := uuid.New().String()
	video := entity.NewVideo(id, objectKey(id, data.Filename), data.Filename, data.ContentType, data.TotalSize)
	uploadId, err := c.uploader.CreateMultipart(video.Key, video.ContentType)
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %v", err)
	}
	video.NewUpload(uploadId, partSize, totalParts)

	urls := make(map[int64]string, totalParts)
	for n := int64(1); n <= totalParts; n++ {
		url, err := c.partURL(video, n)
		if err != nil {
			c.abort(video)
			return err
		}
		urls[n] = url
	}
	if err := c.videos.Save(video); err != nil {
		c.abort(video)
		return fmt.Errorf("failed to save video: %v", err)
	}

	log.Printf("initiated upload session %s: %d bytes in %d parts", id, data.TotalSize, totalParts)
	return replyJSON(w, InitiateUploadResponse{
		SessionId:   id,
		PartSize:    partSize,
		TotalChunks: totalParts,
		Urls:        urls,
	}, http.StatusOK)
}

// Upload a single part through the server, for storage that cannot pre-sign URLs.
func (c *controller) uploadPart(w http.ResponseWriter, r *http.Request) error {
	video, err := c.activeVideo(mux.Vars(r)["id"])
	if err != nil {
		return err
	}
	partNumber, err := strconv.ParseInt(mux.Vars(r)["part"], 10, 64)
	if err != nil {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("cannot parse part number: %v", err)}
	}
	expected := video.PartLength(partNumber)
	if expected == 0 {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("part number must between 1 and %d", video.Upload.TotalParts)}
	}
	if r.ContentLength != expected {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("size of part %d must be %d bytes", partNumber, expected)}
	}
	// The Content-Range header is optional, but must agree with the part when present.
	if s := r.Header.Get(headers.ContentRange); s != "" {
		cr, err := httprange.ParseContentRange(s)
		if err != nil {
			return &AppError{http.StatusBadRequest, err.Error()}
		}
		if cr.Length() != expected || cr.Size != video.Size || cr.PartNumber(video.Upload.PartSize) != partNumber {
			return &AppError{http.StatusBadRequest, "Content-Range header does not match the part"}
		}
		if cr.IsLastByte() {
			log.Printf("received the last part of upload session %s", video.Id)
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, expected))
	if err != nil {
		return fmt.Errorf("failed to read part %d: %v", partNumber, err)
	}
	part, err := c.uploader.UploadPart(video.Key, video.Upload.Id, body, partNumber)
	if err != nil {
		return fmt.Errorf("failed to upload part %d: %v", partNumber, err)
	}
	w.Header().Set(headers.ETag, `"`+part.ETag+`"`)
	w.WriteHeader(http.StatusOK)
	return nil
}

// Complete the upload session with the entity tags of every part.
func (c *controller) completeUpload(w http.ResponseWriter, r *http.Request) error {
	video, err := c.activeVideo(mux.Vars(r)["id"])
	if err != nil {
		return err
	}
	var data CompleteUploadRequest
	if err := parseJSON(w, r, &data); err != nil {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("cannot parse JSON from request body: %v", err)}
	}
	if data.TotalChunks != video.Upload.TotalParts || int64(len(data.Etags)) != video.Upload.TotalParts {
		return &AppError{http.StatusBadRequest, fmt.Sprintf("entity tags of all %d parts must be required", video.Upload.TotalParts)}
	}

	numbers := maps.Keys(data.Etags)
	slices.Sort(numbers)
	parts := make([]*entity.Part, 0, len(numbers))
	for i, n := range numbers {
		if n != int64(i+1) || strings.Trim(data.Etags[n], `"`) == "" {
			return &AppError{http.StatusBadRequest, fmt.Sprintf("missing entity tag of part %d", i+1)}
		}
		parts = append(parts, &entity.Part{ETag: data.Etags[n], PartNumber: n})
	}

	if err := c.uploader.CompleteMultipart(video.Key, video.Upload.Id, parts); err != nil {
		video.SetStatus(entity.UploadedStatusFailed)
		if err := c.videos.Save(video); err != nil {
			log.Printf("failed to mark video %s as failed: %v", video.Id, err)
		}
		return fmt.Errorf("failed to complete multipart upload: %v", err)
	}
	for _, part := range parts {
		video.AddUploadPart(part)
	}
	video.SetStatus(entity.UploadedStatusCompleted)
	if err := c.videos.Save(video); err != nil {
		return fmt.Errorf("failed to save video: %v", err)
	}

	log.Printf("completed upload session %s", video.Id)
	return replyJSON(w, VideoResponse{Id: video.Id}, http.StatusOK)
}

// Cancel the upload session and release the uploaded parts.
func (c *controller) cancelUpload(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]
	if id == "" {
		return &AppError{http.StatusBadRequest, "video ID must be required"}
	}
	video, err := c.videos.GetById(id)
	if err != nil {
		return fmt.Errorf("failed to retrieve the video: %v", err)
	}
	if video == nil {
		return &AppError{http.StatusNotFound, "video ID does not exist"}
	}
	switch video.Status {
	case entity.UploadedStatusCancelled:
		w.WriteHeader(http.StatusNoContent)
		return nil
	case entity.UploadedStatusCompleted:
		return &AppError{http.StatusConflict, "upload has already been completed"}
	}

	c.abort(video)
	video.SetStatus(entity.UploadedStatusCancelled)
	if err := c.videos.Save(video); err != nil {
		return fmt.Errorf("failed to save video: %v", err)
	}

	log.Printf("cancelled upload session %s", video.Id)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Get the video of an upload session that still accepts parts.
func (c *controller) activeVideo(id string) (*entity.Video, error) {
	if id == "" {
		return nil, &AppError{http.StatusBadRequest, "video ID must be required"}
	}
	video, err := c.videos.GetById(id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve the video: %v", err)
	}
	if video == nil {
		return nil, &AppError{http.StatusNotFound, "video ID does not exist"}
	}
	if !video.IsUploading() {
		return nil, &AppError{http.StatusConflict, fmt.Sprintf("upload session is %s", strings.ToLower(video.Status))}
	}
	return video, nil
}

func (c *controller) partURL(video *entity.Video, partNumber int64) (string, error) {
	if c.cfg.ProxyBaseURL != "" {
		return fmt.Sprintf("%s/upload/molpastream/v1/uploads/%s/parts/%d", c.cfg.ProxyBaseURL, video.Id, partNumber), nil
	}
	url, err := c.uploader.PresignPart(video.Key, video.Upload.Id, partNumber, c.cfg.PartURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to generate part upload URL: %v", err)
	}
	return url, nil
}

// Abort the multipart upload of the video, logging failures only.
func (c *controller) abort(video *entity.Video) {
	if video.Upload == nil {
		return
	}
	if err := c.uploader.AbortMultipart(video.Key, video.Upload.Id); err != nil {
		log.Printf("failed to abort multipart upload of video %s: %v", video.Id, err)
	}
}

func normalizePartSize(size int64) int64 {
	switch {
	case size <= 0:
		return DefaultUploadPartSize
	case size < MinUploadPartSize:
		return MinUploadPartSize
	case size > MaxUploadPartSize:
		return MaxUploadPartSize
	}
	return size
}

// Get the storage key of a video, keeping the extension of the original file.
func objectKey(id, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".mp4"
	}
	return "videos/" + id + ext
}

// Parse incoming request body as JSON object.
func parseJSON(w http.ResponseWriter, r *http.Request, data interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestSize)).Decode(data); err != nil {
		return err
	}
	return nil
}

// Respond the output with JSON format to the client.
func replyJSON(w http.ResponseWriter, data interface{}, code int) error {
	w.Header().Set(headers.ContentType, "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return err
	}
	return nil
}

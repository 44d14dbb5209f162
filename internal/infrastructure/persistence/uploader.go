package persistence

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/molpadia/molpareplay/internal/domain/entity"
)

type Uploader struct {
	s3     s3iface.S3API
	bucket string
}

func NewUploader(sess *session.Session, bucket string) *Uploader {
	return &Uploader{s3.New(sess), bucket}
}

// Initiates a multipart upload and return an upload ID from remote S3 storage.
func (u *Uploader) CreateMultipart(key, contentType string) (string, error) {
	out, err := u.s3.CreateMultipartUpload(&s3.CreateMultipartUploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return aws.StringValue(out.UploadId), nil
}

// Get a pre-signed URL to upload the given part directly to S3.
func (u *Uploader) PresignPart(key, uploadId string, partNumber int64, ttl time.Duration) (string, error) {
	req, _ := u.s3.UploadPartRequest(&s3.UploadPartInput{
		Bucket:     aws.String(u.bucket),
		Key:        aws.String(key),
		PartNumber: aws.Int64(partNumber),
		UploadId:   aws.String(uploadId),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d: %v", partNumber, err)
	}
	return url, nil
}

// Upload a file part to remote S3 storage.
func (u *Uploader) UploadPart(key, uploadId string, body []byte, partNumber int64) (*entity.Part, error) {
	out, err := u.s3.UploadPart(&s3.UploadPartInput{
		Body:          bytes.NewReader(body),
		Bucket:        aws.String(u.bucket),
		ContentLength: aws.Int64(int64(len(body))),
		Key:           aws.String(key),
		PartNumber:    aws.Int64(partNumber),
		UploadId:      aws.String(uploadId),
	})
	if err != nil {
		return nil, err
	}
	return &entity.Part{ETag: strings.Trim(aws.StringValue(out.ETag), `"`), PartNumber: partNumber}, nil
}

// Mark the multipart upload as completed for the remote S3 storage.
// S3 expects quoted entity tags ordered by part number.
func (u *Uploader) CompleteMultipart(key, uploadId string, parts []*entity.Part) error {
	var fileParts []*s3.CompletedPart
	for _, part := range parts {
		fileParts = append(fileParts, &s3.CompletedPart{
			ETag:       aws.String(quoteETag(part.ETag)),
			PartNumber: aws.Int64(part.PartNumber),
		})
	}
	_, err := u.s3.CompleteMultipartUpload(&s3.CompleteMultipartUploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		MultipartUpload: &s3.CompletedMultipartUpload{
			Parts: fileParts,
		},
		UploadId: aws.String(uploadId),
	})
	return err
}

// Abort the multipart upload so the storage drops the uploaded parts.
func (u *Uploader) AbortMultipart(key, uploadId string) error {
	_, err := u.s3.AbortMultipartUpload(&s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadId),
	})
	return err
}

func quoteETag(etag string) string {
	return `"` + strings.Trim(etag, `"`) + `"`
}

package persistence

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Create an AWS session. A non-empty endpoint targets an S3-compatible
// provider such as Wasabi or MinIO, which require path-style addressing.
func NewSession(region, endpoint string) (*session.Session, error) {
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	return session.NewSession(cfg)
}

package worldarchive

import (
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	awscredentials "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// newS3Client connects to the bucket holding download counts. Path-style
// addressing keeps S3-compatible stores such as MinIO working.
func newS3Client(cfg *Config) (*s3.S3, error) {
	awsCfg := &aws.Config{
		Credentials: awscredentials.NewStaticCredentials(
			cfg.S3AccessKey,
			cfg.S3SecretKey, "",
		),
		Region:           aws.String(cfg.S3Region),
		DisableSSL:       aws.Bool(!cfg.S3UseSSL),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.S3Host != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Host)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}
	return s3.New(sess), nil
}

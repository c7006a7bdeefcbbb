package downloads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Object keeps counts in a single JSON object, so several deployments
// sharing a bucket see the same totals after a restart.
type S3Object struct {
	Client s3iface.S3API
	Bucket string
	Key    string
}

func (o S3Object) Load(ctx context.Context) (map[string]int64, error) {
	out, err := o.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return make(map[string]int64), nil
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", o.Bucket, o.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", o.Bucket, o.Key, err)
	}

	counts := make(map[string]int64)
	if len(data) == 0 {
		return counts, nil
	}
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("decode s3://%s/%s: %w", o.Bucket, o.Key, err)
	}
	return counts, nil
}

func (o S3Object) Save(ctx context.Context, counts map[string]int64) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode download counts: %w", err)
	}

	_, err = o.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.Bucket),
		Key:         aws.String(o.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", o.Bucket, o.Key, err)
	}
	return nil
}

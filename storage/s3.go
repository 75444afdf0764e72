package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// S3Store keeps files in an S3 bucket or a compatible service.
type S3Store struct {
	svc    *s3.S3
	bucket string
}

func newS3Store(config Config) (*S3Store, error) {
	maxRetries := config.S3MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.S3Region),
		DisableSSL:       aws.Bool(config.S3DisableSSL),
		S3ForcePathStyle: aws.Bool(len(config.S3Endpoint) > 0),
		MaxRetries:       aws.Int(maxRetries),
	}
	if config.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.S3Endpoint)
	}
	if config.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.S3AccessKey, config.S3SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating S3 session: %w", err)
	}

	return &S3Store{svc: s3.New(sess), bucket: config.S3Bucket}, nil
}

func (s *S3Store) Get(ctx context.Context, fileID string) ([]byte, error) {
	if err := validateFileID(fileID); err != nil {
		return nil, err
	}

	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return nil, &UnavailableError{Driver: "s3", FileID: fileID, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &UnavailableError{Driver: "s3", FileID: fileID, Err: err}
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, fileID string, data []byte) error {
	if err := validateFileID(fileID); err != nil {
		return err
	}

	_, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fileID),
		ContentType: aws.String(mimetype.Detect(data).String()),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return &UnavailableError{Driver: "s3", FileID: fileID, Err: err}
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, fileID string) error {
	if err := validateFileID(fileID); err != nil {
		return err
	}

	if _, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	}); err != nil {
		return &UnavailableError{Driver: "s3", FileID: fileID, Err: err}
	}
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

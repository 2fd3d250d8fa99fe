package storage

import (
	"bytes"
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Store uploads objects to an S3 bucket with a public-read ACL.
type S3Store struct {
	bucket    string
	publicURL string
	uploader  s3manageriface.UploaderAPI
	svc       s3iface.S3API
}

// NewS3Store builds a store using the default AWS credential chain.
// publicURL defaults to the bucket's virtual-hosted endpoint.
func NewS3Store(bucket, region, publicURL string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	if publicURL == "" {
		publicURL = "https://" + bucket + ".s3." + region + ".amazonaws.com"
	}
	return NewS3StoreWithClients(bucket, publicURL, s3manager.NewUploader(sess), s3.New(sess)), nil
}

// NewS3StoreWithClients wires explicit clients.
func NewS3StoreWithClients(bucket, publicURL string, uploader s3manageriface.UploaderAPI, svc s3iface.S3API) *S3Store {
	return &S3Store{
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		uploader:  uploader,
		svc:       svc,
	}
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		ACL:         aws.String("public-read"),
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return s.publicURL + "/" + key, nil
}

// Delete removes the object behind url.
func (s *S3Store) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok {
		return nil
	}
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

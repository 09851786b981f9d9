package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// User metadata keys. S3 lower-cases them on write.
const (
	metaFileName  = "file-name"
	metaPatientID = "patient-id"
	metaCategory  = "category"
	metaHash      = "sha256"
	metaTagPrefix = "tag-"
)

// S3Store keeps each archived file at <prefix>/<id>, with its descriptive
// metadata stored as S3 user metadata.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return path.Join(s.prefix, id)
}

func (s *S3Store) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *S3Store) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepareUpload(meta, content)
	if err != nil {
		return nil, err
	}

	userMeta := map[string]string{
		metaFileName: meta.FileName,
		metaCategory: meta.Category,
		metaHash:     meta.Hash,
	}
	if meta.PatientID != "" {
		userMeta[metaPatientID] = meta.PatientID
	}
	for k, v := range meta.Tags {
		userMeta[metaTagPrefix+strings.ToLower(k)] = v
	}

	key := s.key(meta.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata:      userMeta,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", key, err)
	}

	out := meta
	return &out, nil
}

func (s *S3Store) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	key := s.key(id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("s3 get %s: %w", key, err)
	}

	meta := metadataFromS3(id, out.Metadata)
	meta.ContentType = aws.ToString(out.ContentType)
	meta.Size = aws.ToInt64(out.ContentLength)
	meta.CreatedAt = aws.ToTime(out.LastModified)
	return out.Body, &meta, nil
}

func (s *S3Store) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	key := s.key(id)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 head %s: %w", key, err)
	}

	meta := metadataFromS3(id, out.Metadata)
	meta.ContentType = aws.ToString(out.ContentType)
	meta.Size = aws.ToInt64(out.ContentLength)
	meta.CreatedAt = aws.ToTime(out.LastModified)
	return &meta, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ErrBlobNotFound.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	key := s.key(id)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// List walks every object under the prefix and filters on its metadata.
func (s *S3Store) List(ctx context.Context, params ListParams) ([]*BlobMetadata, int, error) {
	matched := []*BlobMetadata{}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.listPrefix()),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, 0, fmt.Errorf("s3 list %s: %w", s.prefix, err)
		}
		for _, obj := range out.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), s.listPrefix())
			if id == "" || strings.Contains(id, "/") {
				continue
			}
			meta, err := s.GetMetadata(ctx, id)
			if errors.Is(err, ErrBlobNotFound) {
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			if params.matches(meta) {
				matched = append(matched, meta)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}

	return page(matched, params.Limit, params.Offset), len(matched), nil
}

func metadataFromS3(id string, userMeta map[string]string) BlobMetadata {
	meta := BlobMetadata{
		ID:        id,
		FileName:  userMeta[metaFileName],
		PatientID: userMeta[metaPatientID],
		Category:  userMeta[metaCategory],
		Hash:      userMeta[metaHash],
		Tags:      map[string]string{},
	}
	for k, v := range userMeta {
		if strings.HasPrefix(k, metaTagPrefix) {
			meta.Tags[strings.TrimPrefix(k, metaTagPrefix)] = v
		}
	}
	return meta
}

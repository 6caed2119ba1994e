package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"designlab/core"
	"designlab/stores/record"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const designPrefix = "designs/"

// s3API is the subset of the S3 client the stores use.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// NewClient builds an S3 client from the default AWS configuration chain.
func NewClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

type s3Store struct {
	s3Client s3API
	bucket   string
}

// NewStore creates an S3 design store. Designs are JSON objects under designs/<user>/.
func NewStore(client s3API, bucketName string) *s3Store {
	return &s3Store{s3Client: client, bucket: bucketName}
}

func (s *s3Store) getDesignKey(userID, designID string) (string, error) {
	if err := record.ValidID(designID); err != nil {
		return "", err
	}
	return designPrefix + path.Join(userID, designID) + ".json", nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *s3Store) read(ctx context.Context, key string) (*core.Design, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read design data: %w", err)
	}
	return record.Unmarshal(data)
}

func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Design, error) {
	prefix := designPrefix + userID + "/"
	log := logrus.WithField("user_id", userID)

	designs := []*core.Design{}
	p := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list designs for user %s: %w", userID, err)
		}
		for _, object := range page.Contents {
			d, err := s.read(ctx, aws.ToString(object.Key))
			if err != nil {
				log.WithError(err).Warnf("Failed to load design %s, skipping", aws.ToString(object.Key))
				continue
			}
			designs = append(designs, d.Summary())
		}
	}
	sort.Slice(designs, func(i, j int) bool {
		return designs[i].UpdatedAt.After(designs[j].UpdatedAt)
	})

	log.Infof("Listed %d designs", len(designs))
	return designs, nil
}

func (s *s3Store) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	key, err := s.getDesignKey(userID, id)
	if err != nil {
		return nil, err
	}
	d, err := s.read(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get design %s: %w", id, err)
	}
	return d, nil
}

func (s *s3Store) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if design.ID == "" {
		design.ID = ulid.Make().String()
	}
	key, err := s.getDesignKey(design.UserID, design.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	design.CreatedAt = now
	if existing, err := s.read(ctx, key); err == nil && !existing.CreatedAt.IsZero() {
		design.CreatedAt = existing.CreatedAt
	}
	design.UpdatedAt = now

	data, err := record.Marshal(design)
	if err != nil {
		return fmt.Errorf("failed to marshal design: %w", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save design %s: %w", design.ID, err)
	}
	logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID}).Info("Design saved successfully")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, userID, id string) error {
	key, err := s.getDesignKey(userID, id)
	if err != nil {
		return err
	}
	if _, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		return fmt.Errorf("failed to delete design %s: %w", id, err)
	}

	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete design %s: %w", id, err)
	}
	return nil
}

// mediaStore keeps media objects in S3 and serves them from a public bucket URL.
type mediaStore struct {
	s3Client  s3API
	bucket    string
	publicURL string
}

// NewMediaStore creates an S3 media store. publicURL defaults to the bucket's virtual-host URL.
func NewMediaStore(client s3API, bucketName, publicURL string) *mediaStore {
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucketName)
	}
	return &mediaStore{s3Client: client, bucket: bucketName, publicURL: strings.TrimSuffix(publicURL, "/")}
}

func (s *mediaStore) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	logrus.WithField("key", key).Info("Media uploaded successfully")
	return s.PublicURL(key), nil
}

func (s *mediaStore) List(ctx context.Context, prefix string) ([]core.MediaObject, error) {
	var out []core.MediaObject
	p := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list media under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			out = append(out, core.MediaObject{
				Key:     key,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func (s *mediaStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("media %s: %w", key, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return resp.Body, nil
}

func (s *mediaStore) Delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	logrus.WithField("key", key).Info("Media deleted successfully")
	return nil
}

func (s *mediaStore) PublicURL(key string) string {
	return s.publicURL + "/" + key
}

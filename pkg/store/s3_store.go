package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/state"
)

// S3Config configures the S3 record backend.
type S3Config struct {
	Bucket string
	Prefix string
	Region string

	// AccessKey/SecretKey override the default AWS credential chain
	// when both are set.
	AccessKey string
	SecretKey string
}

// s3API is the slice of the S3 client the store depends on.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one object per instance under a bucket prefix. The
// fingerprint check is read-compare-put and therefore best effort:
// S3 offers no native compare-and-swap, so the narrow race between the
// check and the put remains. Single-host deployments should prefer the
// FileStore, whose lock closes that window.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	parser *state.Parser
	logger zerolog.Logger
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds a store over a real S3 client.
func NewS3Store(ctx context.Context, cfg S3Config, parser *state.Parser, logger zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg, parser, logger), nil
}

// NewS3StoreWithClient builds a store over a caller-provided client.
func NewS3StoreWithClient(client s3API, cfg S3Config, parser *state.Parser, logger zerolog.Logger) *S3Store {
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		parser: parser,
		logger: logger.With().Str("component", "s3-store").Logger(),
	}
}

// Load reads and validates the record for name.
func (s *S3Store) Load(ctx context.Context, name string) (*state.InstanceState, Fingerprint, error) {
	if err := checkName(name); err != nil {
		return nil, NoPrior, err
	}

	raw, fp, err := s.read(ctx, name)
	if err != nil {
		return nil, NoPrior, err
	}

	st, err := s.parser.Parse(raw)
	if err != nil {
		return nil, NoPrior, fmt.Errorf("load instance %s: %w", name, err)
	}
	return st, fp, nil
}

// Save replaces the record after a best-effort fingerprint check.
func (s *S3Store) Save(ctx context.Context, st *state.InstanceState, prior Fingerprint) (Fingerprint, error) {
	if err := checkName(st.Name); err != nil {
		return NoPrior, err
	}

	raw, err := s.parser.Serialize(st)
	if err != nil {
		return NoPrior, err
	}

	current, err := s.currentFingerprint(ctx, st.Name)
	if err != nil {
		return NoPrior, err
	}
	if current != prior {
		return NoPrior, &ConflictError{Name: st.Name, Expected: prior, Actual: current}
	}

	sealed, err := encryptRecord(raw)
	if err != nil {
		return NoPrior, fmt.Errorf("save instance %s: %w", st.Name, err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(st.Name)),
		Body:   bytes.NewReader(sealed),
	}); err != nil {
		return NoPrior, fmt.Errorf("save instance %s to s3://%s/%s: %w", st.Name, s.bucket, s.key(st.Name), err)
	}

	s.logger.Debug().Str("instance", st.Name).Msg("state record saved")
	return FingerprintOf(raw), nil
}

// Delete removes the record for name after the fingerprint check.
func (s *S3Store) Delete(ctx context.Context, name string, prior Fingerprint) error {
	if err := checkName(name); err != nil {
		return err
	}

	current, err := s.currentFingerprint(ctx, name)
	if err != nil {
		return err
	}
	if current == NoPrior {
		return &NotFoundError{Name: name}
	}
	if current != prior {
		return &ConflictError{Name: name, Expected: prior, Actual: current}
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	}); err != nil {
		return fmt.Errorf("delete instance %s from s3://%s/%s: %w", name, s.bucket, s.key(name), err)
	}
	return nil
}

// List returns the names of all persisted instances under the prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var names []string
	var token *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			key = strings.TrimPrefix(key, s.prefix)
			if !strings.HasSuffix(key, recordExt) || strings.Contains(key, "/") {
				continue
			}
			names = append(names, strings.TrimSuffix(key, recordExt))
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return names, nil
		}
		token = out.NextContinuationToken
	}
}

func (s *S3Store) read(ctx context.Context, name string) ([]byte, Fingerprint, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, NoPrior, &NotFoundError{Name: name}
		}
		return nil, NoPrior, fmt.Errorf("read instance %s from s3://%s/%s: %w", name, s.bucket, s.key(name), err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, NoPrior, fmt.Errorf("read instance %s body: %w", name, err)
	}

	plain, err := decryptRecord(raw)
	if err != nil {
		return nil, NoPrior, fmt.Errorf("read instance %s: %w", name, err)
	}
	return plain, FingerprintOf(plain), nil
}

func (s *S3Store) currentFingerprint(ctx context.Context, name string) (Fingerprint, error) {
	_, fp, err := s.read(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return NoPrior, nil
		}
		return NoPrior, err
	}
	return fp, nil
}

func (s *S3Store) key(name string) string {
	return s.prefix + name + recordExt
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

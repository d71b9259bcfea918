package eventarchive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects      map[string][]byte
	metadata     map[string]map[string]string
	headErr      error
	createdCount int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.metadata[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdCount++
	return &s3.CreateBucketOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	cfg := &Config{Prefix: "provider-events"}
	at := time.Date(2026, 2, 7, 23, 30, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, "provider-events/2026/02/08/evt_1.json", cfg.ObjectKey("evt_1", at))
}

func TestPutAndGetEvent(t *testing.T) {
	api := newFakeS3()
	c := newClient(api, &Config{BucketName: "archive", Prefix: "provider-events", Enabled: true})
	c.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	key, err := c.PutEvent(context.Background(), "evt_1", "invoice.paid", payload)
	require.NoError(t, err)
	assert.Equal(t, "provider-events/2026/03/01/evt_1.json", key)
	assert.Equal(t, "invoice.paid", api.metadata[key]["event-type"])

	got, err := c.GetEvent(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = c.GetEvent(context.Background(), "missing.json")
	assert.Error(t, err)
}

func TestTestConnectionCreatesBucketOutsideProd(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	api := newFakeS3()
	api.headErr = errors.New("NotFound")
	c := newClient(api, &Config{BucketName: "archive", Region: "us-east-1", Enabled: true})

	require.NoError(t, c.testConnection(context.Background()))
	assert.Equal(t, 1, api.createdCount)
}

func TestNewClientRequiresEnabledConfig(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{})
	assert.Error(t, err)
}

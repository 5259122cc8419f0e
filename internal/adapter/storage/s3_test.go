package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	failures int
	calls    int
	inputs   []*s3.PutObjectInput
	bodies   [][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	if f.calls <= f.failures {
		return nil, errors.New("slow down")
	}
	return &s3.PutObjectOutput{}, nil
}

func testS3Store(client PutObjectAPI, retries int) *S3Store {
	s := NewS3StoreWithClient(client, S3Config{
		Bucket:  "inpe-processed",
		Prefix:  "heatspots",
		Timeout: time.Second,
		Retries: retries,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.backoff = time.Millisecond
	return s
}

func TestS3Store_Put(t *testing.T) {
	client := &fakeS3{}
	store := testS3Store(client, 3)

	require.NoError(t, store.Put(context.Background(), "estatisticas.json", []byte(`{}`)))

	require.Equal(t, 1, client.calls)
	in := client.inputs[0]
	assert.Equal(t, "inpe-processed", aws.ToString(in.Bucket))
	assert.Equal(t, "heatspots/estatisticas.json", aws.ToString(in.Key))
	assert.Equal(t, int64(2), aws.ToInt64(in.ContentLength))
	assert.Nil(t, in.ContentEncoding)
	assert.Equal(t, []byte(`{}`), client.bodies[0])
}

func TestS3Store_RetriesThenSucceeds(t *testing.T) {
	client := &fakeS3{failures: 2}
	store := testS3Store(client, 3)

	require.NoError(t, store.Put(context.Background(), "focos.json.gz", []byte("xyz")))

	assert.Equal(t, 3, client.calls)
	for _, body := range client.bodies {
		assert.Equal(t, []byte("xyz"), body, "every attempt should send the full body")
	}
	assert.Equal(t, "gzip", aws.ToString(client.inputs[2].ContentEncoding))
}

func TestS3Store_GivesUpAfterRetries(t *testing.T) {
	client := &fakeS3{failures: 10}
	store := testS3Store(client, 2)

	err := store.Put(context.Background(), "a.json", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "slow down")
	assert.Equal(t, 2, client.calls)
}

func TestS3Store_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeS3{}
	err := testS3Store(client, 3).Put(ctx, "a.json", []byte("{}"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.calls)
}

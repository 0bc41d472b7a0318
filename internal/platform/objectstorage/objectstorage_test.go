package objectstorage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyBucketIsDisabled(t *testing.T) {
	s, err := New(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestEnabled_NilReceiver(t *testing.T) {
	var s *GCSStore
	assert.False(t, s.Enabled())
}

func TestOperations_FailWhenNotConfigured(t *testing.T) {
	s := &GCSStore{}
	ctx := context.Background()

	err := s.Upload(ctx, "key", []byte("data"))
	assert.Error(t, err)

	_, err = s.Download(ctx, "key")
	assert.Error(t, err)

	_, err = s.List(ctx, "prefix/")
	assert.Error(t, err)
}

package objstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ride-duration/internal/objstore"
)

func TestParseURI(t *testing.T) {
	bucket, key, err := objstore.ParseURI("s3://nyc-duration/taxi_type=fhv/year=2021/month=01/predictions.parquet")

	require.NoError(t, err)
	assert.Equal(t, "nyc-duration", bucket)
	assert.Equal(t, "taxi_type=fhv/year=2021/month=01/predictions.parquet", key)
}

func TestParseURI_Invalid(t *testing.T) {
	for _, loc := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key", "/tmp/file.parquet"} {
		t.Run(loc, func(t *testing.T) {
			_, _, err := objstore.ParseURI(loc)
			assert.Error(t, err)
		})
	}
}

func TestIsURI(t *testing.T) {
	assert.True(t, objstore.IsURI("s3://b/k"))
	assert.False(t, objstore.IsURI("https://example.com/k"))
}

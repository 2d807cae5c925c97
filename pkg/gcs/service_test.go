package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitObjectURL(t *testing.T) {
	bucket, object, err := SplitObjectURL("gs://axles-recordings/call-recordings/room-1.ogg")
	require.NoError(t, err)
	assert.Equal(t, "axles-recordings", bucket)
	assert.Equal(t, "call-recordings/room-1.ogg", object)

	bucket, object, err = SplitObjectURL("https://storage.googleapis.com/axles-recordings/call-recordings/room-1.ogg")
	require.NoError(t, err)
	assert.Equal(t, "axles-recordings", bucket)
	assert.Equal(t, "call-recordings/room-1.ogg", object)

	for _, bad := range []string{"", "gs://bucket", "gs://bucket/", "https://example.com/a/b"} {
		_, _, err := SplitObjectURL(bad)
		assert.Error(t, err, bad)
	}
}

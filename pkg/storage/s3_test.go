package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "lectures/abc/archive.json", ArchiveKey("abc"))
}

func TestNewS3(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "ap-southeast-1"}, nil)
	assert.Error(t, err)

	s, err := NewS3(context.Background(), S3Config{
		Region:          "ap-southeast-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		ArchiveBucket:   "lms-archives",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://lms-archives.s3.ap-southeast-1.amazonaws.com/lectures/abc/archive.json", s.ObjectURL(ArchiveKey("abc")))
}

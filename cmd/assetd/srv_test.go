package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetd/internal/blobstore"
	"assetd/internal/config"
)

func TestNewGatewayDrivers(t *testing.T) {
	base := config.Default().Storage

	memory := base
	memory.Driver = config.StorageDriverMemory
	gw, err := newGateway(memory)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryGateway{}, gw)
	assert.Equal(t, "uploads", gw.Bucket())

	local := base
	local.Driver = config.StorageDriverLocal
	local.LocalRoot = t.TempDir()
	gw, err = newGateway(local)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalGateway{}, gw)
	desc, err := gw.PresignUpload(context.Background(), "ws/k-a.png", "image/png", 10)
	require.NoError(t, err)
	assert.Equal(t, "/storage/uploads", desc.URL)

	s3 := base
	s3.Endpoint = "minio.local:9000"
	gw, err = newGateway(s3)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.S3Gateway{}, gw)

	missing := base
	_, err = newGateway(missing)
	require.ErrorContains(t, err, "endpoint is required")

	unknown := base
	unknown.Driver = "ftp"
	_, err = newGateway(unknown)
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestS3UploadURLUsesPublicPath(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Endpoint = "minio.internal:9000"
	cfg.Region = "us-east-1"
	gw, err := newGateway(cfg)
	require.NoError(t, err)
	desc, err := gw.PresignUpload(context.Background(), "ws/k-a.png", "image/png", 10)
	require.NoError(t, err)
	assert.Equal(t, "/storage/uploads", desc.URL)
	assert.Equal(t, "ws/k-a.png", desc.Fields["key"])

	cfg.PublicUploadPath = "https://cdn.example.com/"
	gw, err = newGateway(cfg)
	require.NoError(t, err)
	desc, err = gw.PresignUpload(context.Background(), "ws/k-a.png", "image/png", 10)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads", desc.URL)
}

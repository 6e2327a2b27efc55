package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePolicyNormalize(t *testing.T) {
	policy, err := FilePolicy{
		MaxFileSizeBytes:  DefaultMaxFileSizeBytes,
		AllowedExtensions: []string{"PNG", ".jpg", "png", " pdf "},
	}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []string{"png", "jpg", "pdf"}, policy.AllowedExtensions)
	assert.True(t, policy.Allows("png"))
	assert.False(t, policy.Allows(""))
	assert.False(t, policy.Allows("gif"))
}

func TestFilePolicyNormalizeRejects(t *testing.T) {
	tooMany := make([]string, MaxAllowedExtensions+1)
	for i := range tooMany {
		tooMany[i] = "e" + strings.Repeat("x", i%9)
	}

	tests := []struct {
		name   string
		policy FilePolicy
		want   string
	}{
		{name: "zero size", policy: FilePolicy{AllowedExtensions: []string{"png"}}, want: "greater than 0"},
		{name: "size above cap", policy: FilePolicy{MaxFileSizeBytes: MaxPolicyFileSizeBytes + 1, AllowedExtensions: []string{"png"}}, want: "5000 MB"},
		{name: "empty list", policy: FilePolicy{MaxFileSizeBytes: 1}, want: "must not be empty"},
		{name: "too many", policy: FilePolicy{MaxFileSizeBytes: 1, AllowedExtensions: tooMany}, want: "more than 50"},
		{name: "bad characters", policy: FilePolicy{MaxFileSizeBytes: 1, AllowedExtensions: []string{"tar.gz"}}, want: "invalid extension"},
		{name: "too long", policy: FilePolicy{MaxFileSizeBytes: 1, AllowedExtensions: []string{"abcdefghijk"}}, want: "invalid extension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.policy.Normalize()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFilePolicyMaxFileSizeMB(t *testing.T) {
	assert.Equal(t, "5", DefaultFilePolicy().MaxFileSizeMB())
	assert.Equal(t, "2.5", FilePolicy{MaxFileSizeBytes: 5 * 1024 * 1024 / 2}.MaxFileSizeMB())
}

func TestAssetAttributesMerge(t *testing.T) {
	base := AssetAttributes{Name: "a.png", Type: "image/png", Size: 10}
	merged := base.Merge(AssetAttributes{Name: " renamed.png "})
	assert.Equal(t, AssetAttributes{Name: "renamed.png", Type: "image/png", Size: 10}, merged)
	assert.Equal(t, base, base.Merge(AssetAttributes{}))
}

package cloudinary

import (
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateImageFile(t *testing.T) {
	require.NoError(t, ValidateImageFile(&multipart.FileHeader{Filename: "Cat.JPG", Size: 1024}))
	require.Error(t, ValidateImageFile(&multipart.FileHeader{Filename: "cat.exe", Size: 1024}))
	require.Error(t, ValidateImageFile(&multipart.FileHeader{Filename: "cat.png", Size: MaxImageSize + 1}))
	require.Error(t, ValidateImageFile(nil))
}

func TestNewService_RequiresCredentials(t *testing.T) {
	_, err := NewService("", "key", "secret", "")
	require.Error(t, err)

	svc, err := NewService("demo", "key", "secret", "")
	require.NoError(t, err)
	require.Equal(t, "rewardz", svc.uploadFolder)
}

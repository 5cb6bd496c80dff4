package port

import (
	"context"
	"io"
)

type ObjectStorage interface {
	DownloadInput(ctx context.Context, objectKey string, destPath string) error
	UploadOutput(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}

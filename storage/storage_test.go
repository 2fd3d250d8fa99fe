package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/require"

	"github.com/linkup-social/linkup/metrics"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestGatewayLocalStore(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)
	gw := NewGateway(local, 1024, metrics.New())
	ctx := context.Background()

	url, err := gw.Upload(ctx, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/uploads/images/"), url)
	require.True(t, strings.HasSuffix(url, ".png"), url)

	path := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(url, "/uploads/")))
	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, pngHeader, stored)

	require.NoError(t, gw.Remove(ctx, url))
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	// Second removal and foreign URLs are ignored
	require.NoError(t, gw.Remove(ctx, url))
	require.NoError(t, gw.Remove(ctx, "https://elsewhere.example/a.png"))
	require.NoError(t, gw.Remove(ctx, "/uploads/../secret"))
}

func TestGatewayRejects(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	gw := NewGateway(local, 32, nil)
	ctx := context.Background()

	t.Run("too large", func(t *testing.T) {
		big := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
		_, err := gw.Upload(ctx, bytes.NewReader(big))
		require.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		exact := append(append([]byte{}, pngHeader...), make([]byte, 32-len(pngHeader))...)
		_, err := gw.Upload(ctx, bytes.NewReader(exact))
		require.NoError(t, err)
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := gw.Upload(ctx, strings.NewReader("plain text"))
		require.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("pdf disguised as png", func(t *testing.T) {
		_, err := gw.Upload(ctx, strings.NewReader("%PDF-1.4\n"))
		require.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestGatewayUploadFile(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	gw := NewGateway(local, 1024, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "cat.txt")
	require.NoError(t, err)
	_, err = fw.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	fh := req.MultipartForm.File["image"][0]

	// The declared name does not matter, the content does
	url, err := gw.UploadFile(context.Background(), fh)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(url, ".png"))
}

func TestNilGatewayRemove(t *testing.T) {
	var gw *Gateway
	require.NoError(t, gw.Remove(context.Background(), "/uploads/images/a.png"))
}

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3manager.UploadOutput{Location: "ignored"}, nil
}

type fakeS3 struct {
	s3iface.S3API
	deleted []string
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	up := &fakeUploader{}
	svc := &fakeS3{}
	store := NewS3StoreWithClients("linkup-media", "https://cdn.linkup.example/", up, svc)
	gw := NewGateway(store, 1024, nil)
	ctx := context.Background()

	url, err := gw.Upload(ctx, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn.linkup.example/images/"), url)
	require.Equal(t, "linkup-media", aws.StringValue(up.input.Bucket))
	require.Equal(t, "public-read", aws.StringValue(up.input.ACL))
	require.Equal(t, "image/png", aws.StringValue(up.input.ContentType))
	require.Equal(t, pngHeader, up.body)

	require.NoError(t, gw.Remove(ctx, url))
	require.NoError(t, gw.Remove(ctx, "/uploads/local.png"))
	require.Equal(t, []string{"linkup-media/" + aws.StringValue(up.input.Key)}, svc.deleted)

	up.err = errors.New("access denied")
	_, err = gw.Upload(ctx, bytes.NewReader(pngHeader))
	require.ErrorContains(t, err, "access denied")
}

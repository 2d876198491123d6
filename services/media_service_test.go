package services

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/testutil"
	"github.com/opsdash/commesse-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fileHeader builds a multipart header the way gin hands it to handlers
func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func TestMediaServiceUpload(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	order := testutil.SeedOrder(t, db, "C-2025-030", "Stufa", "Greco", models.PriorityMedium)
	s3 := NewMockS3Service()
	media := NewS3MediaService(s3, db, zap.NewNop())

	attachment, err := media.Upload(ctx, order.ID, fileHeader(t, "foto cantiere.JPG", []byte("jpeg bytes")))
	require.NoError(t, err)
	assert.Equal(t, order.ID, attachment.OrderID)
	assert.Equal(t, "foto cantiere.JPG", attachment.Filename)
	assert.True(t, strings.HasPrefix(attachment.S3Key, "commesse/"))
	assert.True(t, strings.HasSuffix(attachment.S3Key, "_foto_cantiere.JPG"))
	require.NotNil(t, attachment.URL)
	assert.Contains(t, *attachment.URL, attachment.S3Key)
	assert.Equal(t, []byte("jpeg bytes"), s3.Objects()[attachment.S3Key])

	listed, err := media.List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, attachment.ID, listed[0].ID)
	require.NotNil(t, listed[0].URL)
}

func TestMediaServiceUploadRejections(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	order := testutil.SeedOrder(t, db, "C-2025-031", "Stufa", "", models.PriorityMedium)
	s3 := NewMockS3Service()
	media := NewS3MediaService(s3, db, zap.NewNop())

	_, err := media.Upload(ctx, order.ID, fileHeader(t, "preventivo.pdf", []byte("%PDF")))
	var uploadErr *utils.FileUploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "INVALID_FILE_FORMAT", uploadErr.Code)

	_, err = media.Upload(ctx, 9999, fileHeader(t, "foto.png", []byte("png")))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, s3.Objects())
}

func TestMediaServiceListWithoutObject(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	order := testutil.SeedOrder(t, db, "C-2025-032", "Stufa", "", models.PriorityMedium)
	require.NoError(t, db.Create(&models.Attachment{OrderID: order.ID, S3Key: "commesse/missing.png", Filename: "missing.png"}).Error)

	media := NewS3MediaService(NewMockS3Service(), db, zap.NewNop())
	listed, err := media.List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Nil(t, listed[0].URL)
}

func TestMediaServiceRemoveObjects(t *testing.T) {
	ctx := context.Background()
	s3 := NewMockS3Service()
	require.NoError(t, s3.PutObject(ctx, "commesse/1/a.png", strings.NewReader("a"), "image/png"))
	require.NoError(t, s3.PutObject(ctx, "commesse/1/b.png", strings.NewReader("b"), "image/png"))
	media := NewS3MediaService(s3, nil, zap.NewNop())

	require.NoError(t, media.RemoveObjects(ctx, []string{"commesse/1/a.png", "commesse/1/b.png"}))
	assert.Empty(t, s3.Objects())

	s3.FailDeletes(errors.New("access denied"))
	err := media.RemoveObjects(ctx, []string{"x", "y"})
	assert.ErrorContains(t, err, "access denied")
}

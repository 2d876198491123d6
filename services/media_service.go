package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MediaService handles order photos: S3 objects plus their commessa_media rows
type MediaService interface {
	// Upload validates and stores an image for an order
	Upload(ctx context.Context, orderID uint, fileHeader *multipart.FileHeader) (*models.Attachment, error)

	// List returns the order's media with presigned URLs
	List(ctx context.Context, orderID uint) ([]models.Attachment, error)

	// RemoveObjects deletes S3 objects, continuing past failures
	RemoveObjects(ctx context.Context, keys []string) error
}

// S3MediaService implements MediaService using AWS S3 for storage
type S3MediaService struct {
	s3     S3Interface
	db     *gorm.DB
	logger *zap.Logger
}

var mediaServiceInstance MediaService

// InitMediaService initializes the media service with an S3 backend
func InitMediaService(s3 S3Interface, db *gorm.DB, logger *zap.Logger) MediaService {
	mediaServiceInstance = NewS3MediaService(s3, db, logger)
	return mediaServiceInstance
}

// NewS3MediaService creates a media service without registering it
func NewS3MediaService(s3 S3Interface, db *gorm.DB, logger *zap.Logger) *S3MediaService {
	return &S3MediaService{s3: s3, db: db, logger: logger}
}

// GetMediaService returns the initialized media service instance
func GetMediaService() MediaService {
	return mediaServiceInstance
}

// SetMediaService sets the media service instance (primarily for testing)
func SetMediaService(service MediaService) {
	mediaServiceInstance = service
}

// Upload validates the image, stores it in S3 and records the row.
// The object is removed again if the row cannot be written.
func (s *S3MediaService) Upload(ctx context.Context, orderID uint, fileHeader *multipart.FileHeader) (*models.Attachment, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up order %d: %w", orderID, err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			s.logger.Warn("failed to close uploaded file", zap.Error(closeErr))
		}
	}()

	key := utils.MediaKey(orderID, fileHeader.Filename, time.Now())
	if err := s.s3.PutObject(ctx, key, file, utils.ImageContentType(fileHeader.Filename)); err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	attachment := models.Attachment{
		OrderID:  orderID,
		S3Key:    key,
		Filename: fileHeader.Filename,
	}
	if err := s.db.WithContext(ctx).Create(&attachment).Error; err != nil {
		if delErr := s.s3.DeleteObject(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("failed to remove orphaned media object", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to record media for order %d: %w", orderID, err)
	}

	s.presign(ctx, &attachment)
	return &attachment, nil
}

// List returns the media rows of an order, oldest first
func (s *S3MediaService) List(ctx context.Context, orderID uint) ([]models.Attachment, error) {
	var attachments []models.Attachment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("failed to list media of order %d: %w", orderID, err)
	}
	for i := range attachments {
		s.presign(ctx, &attachments[i])
	}
	return attachments, nil
}

// RemoveObjects deletes every key and joins the failures
func (s *S3MediaService) RemoveObjects(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.s3.DeleteObject(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3MediaService) presign(ctx context.Context, a *models.Attachment) {
	url, err := s.s3.GetPresignedURL(ctx, a.S3Key)
	if err != nil {
		s.logger.Warn("failed to presign media URL", zap.String("key", a.S3Key), zap.Error(err))
		return
	}
	a.URL = &url
}

package implementation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/mapper"
	"helpdesk-chat-core/internal/model"
	"helpdesk-chat-core/internal/repository/contract"
)

type ServiceRequestRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewServiceRequestRepository(db *gorm.DB) contract.ServiceRequestRepository {
	return &ServiceRequestRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ServiceRequestRepositoryImpl) Create(ctx context.Context, request *entity.ServiceRequest) error {
	m := r.mapper.ServiceRequestToModel(request)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*request = *r.mapper.ServiceRequestToEntity(m)
	return nil
}

func (r *ServiceRequestRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.ServiceRequest, error) {
	var m model.ServiceRequest
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ServiceRequestToEntity(&m), nil
}

func (r *ServiceRequestRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, statusCode string, countAsSolved bool) error {
	return r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status_code":     statusCode,
			"count_as_solved": countAsSolved,
		}).Error
}

func (r *ServiceRequestRepositoryImpl) MarkFirstResponse(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("id = ? AND first_response_at IS NULL", id).
		Update("first_response_at", time.Now().UTC()).Error
}

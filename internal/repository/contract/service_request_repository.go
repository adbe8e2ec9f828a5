package contract

import (
	"context"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/entity"
)

type ServiceRequestRepository interface {
	Create(ctx context.Context, request *entity.ServiceRequest) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.ServiceRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, statusCode string, countAsSolved bool) error
	MarkFirstResponse(ctx context.Context, id uuid.UUID) error
}

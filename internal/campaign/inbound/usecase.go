package inbound

import (
	"context"

	"github.com/shandysiswandi/gosend/internal/campaign/entity"
	"github.com/shandysiswandi/gosend/internal/campaign/usecase"
)

type uc interface {
	StartCampaign(ctx context.Context, in usecase.StartCampaignInput) (<-chan entity.Event, error)
	ProbeCredentials(ctx context.Context, in usecase.ProbeCredentialsInput) error
}

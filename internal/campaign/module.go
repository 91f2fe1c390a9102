package campaign

import (
	"github.com/shandysiswandi/gosend/internal/campaign/inbound"
	"github.com/shandysiswandi/gosend/internal/campaign/outbound/relay"
	"github.com/shandysiswandi/gosend/internal/campaign/usecase"
	"github.com/shandysiswandi/gosend/internal/pkg/clock"
	"github.com/shandysiswandi/gosend/internal/pkg/config"
	"github.com/shandysiswandi/gosend/internal/pkg/goroutine"
	"github.com/shandysiswandi/gosend/internal/pkg/idempotency"
	"github.com/shandysiswandi/gosend/internal/pkg/instrument"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
	"github.com/shandysiswandi/gosend/internal/pkg/router"
	"github.com/shandysiswandi/gosend/internal/pkg/uid"
	"github.com/shandysiswandi/gosend/internal/pkg/validator"
)

type Dependency struct {
	Config      config.Config
	Instrument  instrument.Instrumentation
	UUID        uid.StringID
	Clock       clock.Clocker
	Goroutine   *goroutine.Manager
	Validator   validator.Validator
	Router      *router.Router
	Dialer      *mail.Dialer
	Builder     *mail.Builder
	Idempotency idempotency.Idempotency
}

func New(dep Dependency) error {
	repoRelay := relay.New(dep.Dialer, dep.Instrument)

	uc := usecase.NewCampaign(usecase.Dependency{
		RepoRelay:   repoRelay,
		Builder:     dep.Builder,
		Idempotency: dep.Idempotency,
		Config:      dep.Config,
		UUID:        dep.UUID,
		Clock:       dep.Clock,
		Goroutine:   dep.Goroutine,
		Validator:   dep.Validator,
		Instrument:  dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc, dep.Config.GetInt64("modules.campaign.max_attachment_bytes"))

	return nil
}

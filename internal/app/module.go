package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/gosend/internal/campaign"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.campaign.enabled") {
		if err := campaign.New(campaign.Dependency{
			Config:      a.config,
			Instrument:  a.ins,
			UUID:        a.uuid,
			Clock:       a.clock,
			Goroutine:   a.goroutine,
			Validator:   a.validator,
			Router:      a.router,
			Dialer:      a.dialer,
			Builder:     a.builder,
			Idempotency: a.idemp,
		}); err != nil {
			slog.Error("failed to init module campaign", "error", err)
			os.Exit(1)
		}
	}
}

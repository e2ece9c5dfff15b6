package tryon

import (
	"github.com/missmatchapp/missmatch/internal/config"
	"github.com/missmatchapp/missmatch/internal/tryon/flux"
	"github.com/missmatchapp/missmatch/internal/tryon/mock"
	"github.com/missmatchapp/missmatch/internal/tryon/nanobanana"
	"github.com/missmatchapp/missmatch/pkg/models"
)

// NewDefaultRegistry wires every known driver. callbackBase is this
// deployment's public base URL; webhook-capable drivers derive their
// callback endpoints from it.
func NewDefaultRegistry(cfg config.TryOnConfig, callbackBase string) *Registry {
	r := NewRegistry(cfg.Driver)

	r.Register("flux", func() (models.TryOnDriver, error) {
		return flux.NewDriver(cfg.Flux, callbackBase)
	})
	r.Register("nanobanana", func() (models.TryOnDriver, error) {
		return nanobanana.NewDriver(cfg.NanoBanana, callbackBase)
	})
	r.Register("mock", func() (models.TryOnDriver, error) {
		return mock.NewDriver(), nil
	})

	return r
}

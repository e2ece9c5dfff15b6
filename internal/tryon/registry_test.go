package tryon_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/missmatchapp/missmatch/internal/tryon"
	"github.com/missmatchapp/missmatch/internal/tryon/mock"
	"github.com/missmatchapp/missmatch/pkg/models"
)

func mockFactory() (models.TryOnDriver, error) {
	return mock.NewDriver(), nil
}

func TestRegistry_CreateByName(t *testing.T) {
	r := tryon.NewRegistry("mock")
	r.Register("mock", mockFactory)

	driver, err := r.Create("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", driver.Name())
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := tryon.NewRegistry("MOCK")
	r.Register("Mock", mockFactory)

	driver, err := r.Create("mOcK")
	require.NoError(t, err)
	assert.Equal(t, "mock", driver.Name())

	assert.Equal(t, "mock", r.DefaultName())
}

func TestRegistry_EmptyNameUsesDefault(t *testing.T) {
	r := tryon.NewRegistry("mock")
	r.Register("mock", mockFactory)

	driver, err := r.Create("")
	require.NoError(t, err)
	assert.Equal(t, "mock", driver.Name())
}

func TestRegistry_UnknownExplicitName(t *testing.T) {
	r := tryon.NewRegistry("mock")
	r.Register("mock", mockFactory)

	_, err := r.Create("dalle")
	require.Error(t, err)
	assert.ErrorIs(t, err, tryon.ErrDriverNotRegistered)
	// The message must name the driver the caller asked for.
	assert.Contains(t, err.Error(), "dalle")
}

func TestRegistry_UnregisteredDefaultFallsBackToMock(t *testing.T) {
	r := tryon.NewRegistry("flux")
	r.Register("mock", mockFactory)

	assert.Equal(t, "mock", r.DefaultName())

	driver, err := r.Create("")
	require.NoError(t, err)
	assert.Equal(t, "mock", driver.Name())
}

func TestRegistry_FactoryErrorIsDriverConfig(t *testing.T) {
	r := tryon.NewRegistry("flux")
	r.Register("flux", func() (models.TryOnDriver, error) {
		return nil, errors.New("flux base URL and API key are required")
	})

	_, err := r.Create("flux")
	require.Error(t, err)
	assert.ErrorIs(t, err, tryon.ErrDriverConfig)
	assert.Contains(t, err.Error(), "flux")
}

func TestRegistry_SupportedDriversSorted(t *testing.T) {
	r := tryon.NewRegistry("mock")
	r.Register("nanobanana", mockFactory)
	r.Register("mock", mockFactory)
	r.Register("flux", mockFactory)

	assert.Equal(t, []string{"flux", "mock", "nanobanana"}, r.SupportedDrivers())
}

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	pkgs := c.Packages()
	require.Len(t, pkgs, 4)
	assert.Equal(t, "1h", pkgs[0].ID)

	pkg, ok := c.Find("3h")
	require.True(t, ok)
	assert.Equal(t, 180, pkg.Time)
	assert.Equal(t, 12000, pkg.Price)

	_, ok = c.Find("10h")
	assert.False(t, ok)
}

func TestPackagesReturnsCopy(t *testing.T) {
	c := Default()
	pkgs := c.Packages()
	pkgs[0].Price = 1

	again := c.Packages()
	assert.Equal(t, 5000, again[0].Price)
}

func TestExtensionPrice(t *testing.T) {
	tests := []struct {
		minutes int
		price   int
	}{
		{0, 0},
		{1, 5000},
		{30, 5000},
		{31, 10000},
		{60, 10000},
		{90, 15000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.price, ExtensionPrice(tt.minutes), "minutes=%d", tt.minutes)
	}
}

func TestExtension(t *testing.T) {
	pkg, err := Extension(30)
	require.NoError(t, err)
	assert.Equal(t, "extend-30", pkg.ID)
	assert.Equal(t, "Extra 30 minutes", pkg.Name)
	assert.Equal(t, 30, pkg.Time)
	assert.Equal(t, 5000, pkg.Price)

	_, err = Extension(0)
	assert.Error(t, err)
	_, err = Extension(MaxExtensionMinutes + 1)
	assert.Error(t, err)
}

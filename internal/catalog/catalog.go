package catalog

import (
	"fmt"

	"warnet/backend/internal/model"
)

const (
	ExtensionBlockMinutes = 30
	ExtensionBlockPrice   = 5000
	MaxExtensionMinutes   = 12 * 60
)

var defaultPackages = []model.Package{
	{ID: "1h", Name: "1 Hour", Time: 60, Price: 5000},
	{ID: "2h", Name: "2 Hours", Time: 120, Price: 9000},
	{ID: "3h", Name: "3 Hours", Time: 180, Price: 12000},
	{ID: "5h", Name: "5 Hours", Time: 300, Price: 18000},
}

type Catalog struct {
	packages []model.Package
	byID     map[string]model.Package
}

func Default() *Catalog {
	return New(defaultPackages)
}

func New(packages []model.Package) *Catalog {
	c := &Catalog{
		packages: make([]model.Package, len(packages)),
		byID:     make(map[string]model.Package, len(packages)),
	}
	copy(c.packages, packages)
	for _, pkg := range packages {
		c.byID[pkg.ID] = pkg
	}
	return c
}

func (c *Catalog) Packages() []model.Package {
	out := make([]model.Package, len(c.packages))
	copy(out, c.packages)
	return out
}

func (c *Catalog) Find(id string) (model.Package, bool) {
	pkg, ok := c.byID[id]
	return pkg, ok
}

// ExtensionPrice charges a full block for every started 30 minutes.
func ExtensionPrice(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	blocks := (minutes + ExtensionBlockMinutes - 1) / ExtensionBlockMinutes
	return blocks * ExtensionBlockPrice
}

func Extension(minutes int) (model.Package, error) {
	if minutes <= 0 || minutes > MaxExtensionMinutes {
		return model.Package{}, fmt.Errorf("extension must be between 1 and %d minutes", MaxExtensionMinutes)
	}
	return model.Package{
		ID:    fmt.Sprintf("extend-%d", minutes),
		Name:  fmt.Sprintf("Extra %d minutes", minutes),
		Time:  minutes,
		Price: ExtensionPrice(minutes),
	}, nil
}

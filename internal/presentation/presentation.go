// Package presentation maps satellites to rendering hints. It is kept apart
// from the orbital state so the core never carries asset details.
package presentation

import "github.com/star/satviz/internal/tle"

// Category tags select a profile.
const (
	CategoryISS     = "ISS"
	CategoryGPS     = "GPS"
	CategoryDefault = "DEFAULT"
	CategoryEarth   = "EARTH"
)

// Profile describes how a renderer should draw one kind of object.
type Profile struct {
	Category string     `json:"category"`
	Model    string     `json:"model"`
	Material string     `json:"material"`
	Texture  string     `json:"texture"`
	Scale    [3]float64 `json:"scale"`
	Rotation [3]float64 `json:"rotation"` // degrees about X, Y, Z
}

var profiles = map[string]Profile{
	CategoryISS: {
		Category: CategoryISS,
		Model:    "models/iss/ISS.obj",
		Material: "models/Satellite.mtl",
		Texture:  "models/Satellite.mtl",
		Scale:    [3]float64{0.001, 0.001, 0.001},
		Rotation: [3]float64{0, 90, 0},
	},
	CategoryGPS: {
		Category: CategoryGPS,
		Model:    "models/gps/gps.obj",
		Material: "models/gps/gps.mtl",
		Texture:  "models/Satellite.mtl",
		Scale:    [3]float64{0.01, 0.01, 0.01},
	},
	CategoryDefault: {
		Category: CategoryDefault,
		Model:    "models/Satellite.obj",
		Material: "models/Satellite.mtl",
		Texture:  "models/Satellite.mtl",
		Scale:    [3]float64{0.01, 0.01, 0.01},
	},
	CategoryEarth: {
		Category: CategoryEarth,
		Model:    "models/earth/earth.obj",
		Material: "models/earth/earth.mtl",
		Texture:  "earth_texture.png",
		Scale:    [3]float64{0.025, 0.025, 0.025},
		Rotation: [3]float64{180, 0, -180},
	},
}

var categories = map[tle.CatalogNumber]string{
	"25544": CategoryISS,
	"28129": CategoryGPS,
}

// CategoryFor returns the category tag for a satellite.
func CategoryFor(id tle.CatalogNumber) string {
	if c, ok := categories[id]; ok {
		return c
	}
	return CategoryDefault
}

// For returns the profile for a satellite.
func For(id tle.CatalogNumber) Profile {
	return profiles[CategoryFor(id)]
}

// ByCategory returns the profile for a category tag.
func ByCategory(category string) (Profile, bool) {
	p, ok := profiles[category]
	return p, ok
}

// Earth returns the profile of the globe model.
func Earth() Profile { return profiles[CategoryEarth] }

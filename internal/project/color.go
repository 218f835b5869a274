package project

import (
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// hexColor formats a surface's display color as #rrggbb for clients.
func hexColor(sf *surface.Surface) string {
	c, _ := colorful.MakeColor(sf.Color().Color())
	return c.Hex()
}

package app

import (
	"github.com/specialistvlad/opcalc/internal/registry"
	"github.com/specialistvlad/opcalc/modules/arithmetic"
	"github.com/specialistvlad/opcalc/modules/power"
)

// coreModules is the definitive list of all modules that are compiled into
// the opcalc binary. Worker processes register the same list.
var coreModules = []registry.Module{
	&arithmetic.Module{},
	&power.Module{},
}

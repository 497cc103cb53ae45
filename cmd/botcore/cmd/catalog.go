package cmd

import (
	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/internal/modules/system"
	"github.com/SlastyonArtyom/BotCore/plugins/autoequip"
	"github.com/SlastyonArtyom/BotCore/plugins/combat"
	"github.com/SlastyonArtyom/BotCore/plugins/notify"
)

// catalog is every module compiled into the binary, in load order. notify
// comes before combat, which looks it up.
func catalog() modules.Catalog {
	return modules.Catalog{
		system.Definition(),
		notify.Definition(),
		combat.Definition(),
		autoequip.Definition(),
	}
}

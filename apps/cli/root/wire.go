package root

import (
	"github.com/netview-hq/netview-go/apps/cli/cmd/alert"
	"github.com/netview-hq/netview-go/apps/cli/cmd/auth"
	"github.com/netview-hq/netview-go/apps/cli/cmd/gateway"
	"github.com/netview-hq/netview-go/apps/cli/cmd/onboard"
	"github.com/netview-hq/netview-go/apps/cli/cmd/probe"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(onboard.Command())
	Root().AddCommand(probe.Command())
	Root().AddCommand(gateway.Command())
	Root().AddCommand(alert.Command())
}

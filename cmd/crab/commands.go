package main

import (
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/subcommands/checkusername"
	"github.com/opst/crabclient/cmd/crab/subcommands/getlog"
	"github.com/opst/crabclient/cmd/crab/subcommands/getoutput"
	"github.com/opst/crabclient/cmd/crab/subcommands/getoutputold"
	"github.com/opst/crabclient/cmd/crab/subcommands/kill"
	"github.com/opst/crabclient/cmd/crab/subcommands/proceed"
	"github.com/opst/crabclient/cmd/crab/subcommands/report"
	"github.com/opst/crabclient/cmd/crab/subcommands/requesttype"
	"github.com/opst/crabclient/cmd/crab/subcommands/resubmit"
	"github.com/opst/crabclient/cmd/crab/subcommands/serverinfo"
	"github.com/opst/crabclient/cmd/crab/subcommands/status"
	"github.com/opst/crabclient/cmd/crab/subcommands/submit"
)

// builders of commands, in the order shown by "crab commands".
var builders = []command.Factory{
	func() command.Runner { return command.Build[submit.Flags](submit.New()) },
	func() command.Runner { return command.Build[status.Flags](status.New()) },
	func() command.Runner { return command.Build[proceed.Flags](proceed.New()) },
	func() command.Runner { return command.Build[kill.Flags](kill.New()) },
	func() command.Runner { return command.Build[resubmit.Flags](resubmit.New()) },
	func() command.Runner { return command.Build[report.Flags](report.New()) },
	func() command.Runner { return command.Build[getoutput.Flags](getoutput.New()) },
	func() command.Runner { return command.Build[getoutputold.Flags](getoutputold.New()) },
	func() command.Runner { return command.Build[getlog.Flags](getlog.New()) },
	func() command.Runner { return command.Build[requesttype.Flags](requesttype.New()) },
	func() command.Runner { return command.Build[serverinfo.Flags](serverinfo.New()) },
	func() command.Runner { return command.Build[checkusername.Flags](checkusername.New()) },
}

// NewRegistry registers all crab commands.
func NewRegistry() (*command.Registry, error) {
	r := command.NewRegistry()
	for _, b := range builders {
		if err := r.Register(b().Name(), b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/bank/akahu"
	"github.com/cleared-dev/banksync/internal/bank/bnz"
	"github.com/cleared-dev/banksync/internal/bank/csvfile"
	"github.com/cleared-dev/banksync/internal/bank/up"
)

// DefaultRegistry returns a registry with all built-in providers.
func DefaultRegistry() *bank.Registry {
	r := bank.NewRegistry()
	r.Register(up.Name, up.Factory)
	r.Register(akahu.Name, akahu.Factory)
	r.Register(bnz.Name, bnz.Factory)
	r.Register(csvfile.Name, csvfile.Factory)
	return r
}

func newBanksCommand(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "banks",
		Short: "List the supported bank providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range e.registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"walletTracker/internal/model"
	"walletTracker/internal/registry"
)

func newWalletsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Manage tracked wallets and their recipients",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <network> <address> <recipient>",
		Short: "Track a wallet for a recipient",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			network, reg, err := openRegistry(cmd, args[0])
			if err != nil {
				return err
			}
			changed, err := reg.Add(network, args[1], args[2])
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "already tracked")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracking %s on %s for %s\n", args[1], network, args[2])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <network> <address> [recipient]",
		Short: "Stop tracking a wallet, for one recipient or for everyone",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			network, reg, err := openRegistry(cmd, args[0])
			if err != nil {
				return err
			}
			recipient := ""
			if len(args) == 3 {
				recipient = args[2]
			}
			changed, err := reg.Remove(network, args[1], recipient)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "not tracked")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s on %s\n", args[1], network)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [network]",
		Short: "List tracked wallets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			networks := []model.Network{model.Mainnet, model.Testnet}
			if len(args) == 1 {
				network, err := model.ParseNetwork(args[0])
				if err != nil {
					return err
				}
				networks = []model.Network{network}
			}
			path, _ := cmd.Flags().GetString("registry")
			reg, err := registry.Open(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, network := range networks {
				for _, entry := range reg.List(network) {
					fmt.Fprintf(out, "%s\t%s\t%s\n", network, entry.Address, strings.Join(entry.Recipients, ","))
				}
			}
			return nil
		},
	})

	return cmd
}

func openRegistry(cmd *cobra.Command, networkName string) (model.Network, *registry.Registry, error) {
	network, err := model.ParseNetwork(networkName)
	if err != nil {
		return "", nil, err
	}
	path, _ := cmd.Flags().GetString("registry")
	reg, err := registry.Open(path)
	if err != nil {
		return "", nil, err
	}
	return network, reg, nil
}

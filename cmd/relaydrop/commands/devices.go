package commands

import (
	"fmt"

	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	"github.com/relaydrop/relaydrop/internal/devices"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Devices() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices registered with the relay",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("relay", cmd.Flags().Lookup("relay")); err != nil {
				return fmt.Errorf("binding relay flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			relayAddr := viper.GetString("relay")
			if err := validateAddress(relayAddr); err != nil {
				return fmt.Errorf("%w: (%s) is not a valid relay address", err, relayAddr)
			}
			client := devices.New(relayAddr, nil)
			self, err := client.DetectIP(cmd.Context())
			if err != nil {
				return fmt.Errorf("detecting own address: %w", err)
			}
			ips, err := client.GetIPs(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			if len(ips) == 0 {
				fmt.Println(tui.WarningText("No devices registered"))
				return nil
			}
			for _, ip := range ips {
				if ip == self {
					fmt.Println(tui.BoldText(ip + " (this device)"))
					continue
				}
				fmt.Println(ip)
			}
			return nil
		},
	}
	devicesCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	return devicesCmd
}

package commands

import (
	"fmt"

	"github.com/relaydrop/relaydrop/internal/devices"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Clip() *cobra.Command {
	clipCmd := &cobra.Command{
		Use:   "clip device [text]",
		Short: "Send clipboard text to a device",
		Long:  "The clip command pushes text to a registered device. Without text the clipboard of the relay host is sent.",
		Args:  cobra.RangeArgs(1, 2),
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
			var text string
			if len(args) == 2 {
				text = args[1]
			}
			status, err := devices.New(relayAddr, nil).PushClipboard(cmd.Context(), args[0], text)
			if err != nil {
				return fmt.Errorf("pushing clipboard: %w", err)
			}
			return printStatus(status, args[0])
		},
	}
	clipCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	return clipCmd
}

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	"github.com/relaydrop/relaydrop/internal/devices"
	"github.com/relaydrop/relaydrop/protocol/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// -------------------------------------------------------- Send -------------------------------------------------------

func Send() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send device path",
		Short: "Send a file or directory to a device",
		Long: "The send command asks the relay to offer a file or directory to a registered device. " +
			"The path is read on the relay host, directories are archived before sending.",
		Args: cobra.ExactArgs(2),
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
			path := args[1]
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			status, err := devices.New(relayAddr, nil).SendFile(cmd.Context(), args[0], path)
			if err != nil {
				return fmt.Errorf("requesting transfer: %w", err)
			}
			return printStatus(status, args[0])
		},
	}
	sendCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	return sendCmd
}

// printStatus reports the relay status of a request aimed at device.
func printStatus(status, device string) error {
	switch status {
	case api.StatusDeviceOffline:
		return fmt.Errorf("device %s is offline", device)
	case api.StatusRequestSent:
		fmt.Println(tui.SuccessText(fmt.Sprintf("Transfer request sent to %s", device)))
	case api.StatusClipboardSent:
		fmt.Println(tui.SuccessText(fmt.Sprintf("Clipboard sent to %s", device)))
	default:
		fmt.Fprintln(os.Stderr, tui.WarningText(fmt.Sprintf("Unexpected relay status %q", status)))
	}
	return nil
}


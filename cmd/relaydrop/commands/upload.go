package commands

import (
	"fmt"
	"os"

	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	"github.com/relaydrop/relaydrop/internal/devices"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Upload() *cobra.Command {
	uploadCmd := &cobra.Command{
		Use:   "upload file",
		Short: "Upload a file to the relay",
		Long:  "The upload command stores a local file in the upload directory of the relay.",
		Args:  cobra.ExactArgs(1),
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
			estimator := progress.New(progress.NewLineRenderer(os.Stdout))
			res, err := devices.New(relayAddr, nil).Upload(cmd.Context(), args[0], estimator)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", args[0], err)
			}
			fmt.Println(tui.SuccessText(fmt.Sprintf("%s: %s", res.Info, res.Filename)))
			return nil
		},
	}
	uploadCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	return uploadCmd
}

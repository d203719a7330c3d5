package commands

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/relaydrop/relaydrop/internal/logger"
	"github.com/relaydrop/relaydrop/internal/relay"
	"github.com/relaydrop/relaydrop/internal/semver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Serve(version string) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay server",
		Long:  "The serve command runs the relay that registered devices connect to.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("relay_port", cmd.Flags().Lookup("port")); err != nil {
				return fmt.Errorf("binding port flag: %w", err)
			}
			if err := viper.BindPFlag("upload_dir", cmd.Flags().Lookup("upload-dir")); err != nil {
				return fmt.Errorf("binding upload-dir flag: %w", err)
			}
			if err := viper.BindPFlag("chunk_size", cmd.Flags().Lookup("chunk-size")); err != nil {
				return fmt.Errorf("binding chunk-size flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := semver.Parse(version)
			if err != nil {
				return fmt.Errorf("server requires version to be set: %w", err)
			}
			address, _ := cmd.Flags().GetString("address")

			ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lgr := logger.New()
			defer func() { _ = lgr.Sync() }()

			server := relay.NewServer(relay.Config{
				Port:      viper.GetInt("relay_port"),
				UploadDir: viper.GetString("upload_dir"),
				ChunkSize: viper.GetInt("chunk_size"),
				Address:   address,
			}, ver, lgr)
			return server.Start(ctx)
		},
	}
	serveCmd.Flags().IntP("port", "p", 0, "port to run the relay server on")
	serveCmd.Flags().String("upload-dir", "", "directory uploaded files are stored in")
	serveCmd.Flags().Int("chunk-size", 0, "size in bytes of the binary frames files are sent in")
	serveCmd.Flags().String("address", "", "address announced as sender in transfer requests")
	return serveCmd
}

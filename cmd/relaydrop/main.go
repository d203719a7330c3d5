package main

import (
	"fmt"
	"os"

	"github.com/relaydrop/relaydrop/cmd/relaydrop/commands"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// injected at link time using -ldflags.
var version string

// Initialization of cobra and viper.
func init() {
	cobra.OnInitialize(func() {
		if err := config.Init(); err != nil {
			fmt.Println("Error: could not initialize config:", err)
			os.Exit(1)
		}
	})
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a file on the format `.relaydrop-[command].log` in the current directory")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(commands.Receive(version))
	rootCmd.AddCommand(commands.Serve(version))
	rootCmd.AddCommand(commands.Send())
	rootCmd.AddCommand(commands.Clip())
	rootCmd.AddCommand(commands.Upload())
	rootCmd.AddCommand(commands.Devices())
	rootCmd.AddCommand(commands.Config())
	rootCmd.AddCommand(commands.Version(version))
}

// rootCmd is the top level `relaydrop` command on which the other subcommands are attached to.
var rootCmd = &cobra.Command{
	Use:   "relaydrop",
	Short: "Relaydrop receives files and clipboard text pushed through a relay.",
}

// Entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

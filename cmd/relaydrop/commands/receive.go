package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"

	"github.com/relaydrop/relaydrop/cmd/relaydrop/config"
	receiver_tui "github.com/relaydrop/relaydrop/cmd/relaydrop/tui/receiver"
	"github.com/relaydrop/relaydrop/internal/clip"
	"github.com/relaydrop/relaydrop/internal/conn"
	"github.com/relaydrop/relaydrop/internal/consent"
	"github.com/relaydrop/relaydrop/internal/devices"
	"github.com/relaydrop/relaydrop/internal/file"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/internal/receiver"
	"github.com/relaydrop/relaydrop/internal/semver"
	"github.com/relaydrop/relaydrop/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ------------------------------------------------------ Receive ------------------------------------------------------

func Receive(version string) *cobra.Command {
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive files",
		Long:  "The receive command registers this device with the relay and receives the files and clipboard text sent to it.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to viper.
			for key, flag := range map[string]string{
				"relay":           "relay",
				"tui_style":       "tui-style",
				"output_dir":      "output",
				"overwrite":       "yes",
				"stream_to_disk":  "stream",
				"require_consent": "require-consent",
				"consent_timeout": "consent-timeout",
				"sync_clipboard":  "sync-clipboard",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("binding %s flag: %w", flag, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			relayAddr := viper.GetString("relay")
			if err := validateAddress(relayAddr); err != nil {
				return fmt.Errorf("%w: (%s) is not a valid relay address", err, relayAddr)
			}

			lgr, err := setupLoggingFromViper("receive")
			if err != nil {
				return err
			}
			defer func() { _ = lgr.Sync() }()

			once, _ := cmd.Flags().GetBool("once")
			extract, _ := cmd.Flags().GetBool("extract")
			opts := receiveOptions{once: once, extract: extract}

			switch viper.GetString("tui_style") {
			case config.StyleRich:
				if err := handleReceiveCommand(version, opts, lgr); err != nil {
					return fmt.Errorf("running rich receive command: %w", err)
				}
				return nil
			case config.StyleRaw:
				if err := handleReceiveCommandRaw(version, opts, lgr); err != nil {
					return fmt.Errorf("running raw receive command: %w", err)
				}
				return nil
			default:
				return errors.New("invalid tui style provided")
			}
		},
	}
	receiveCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	receiveCmd.Flags().StringP("tui-style", "s", "", tuiStyleFlagDesc)
	receiveCmd.Flags().StringP("output", "o", "", "Directory received files are written to")
	receiveCmd.Flags().BoolP("yes", "y", false, "Replace existing files of the same name instead of picking a free one")
	receiveCmd.Flags().Bool("stream", true, "Stream received files straight to disk when possible")
	receiveCmd.Flags().Bool("require-consent", false, "Refuse transfers that were not preceded by a consent request")
	receiveCmd.Flags().Duration("consent-timeout", 0, "Reject consent requests left unanswered for this long")
	receiveCmd.Flags().Bool("sync-clipboard", false, "Write received clipboard text to the system clipboard")
	receiveCmd.Flags().Bool("once", false, "Exit after the first completed transfer")
	receiveCmd.Flags().Bool("extract", false, "Extract received directory archives into the output directory")
	return receiveCmd
}

type receiveOptions struct {
	once    bool
	extract bool
}

// receiveHooks connects a receiver to its user interface.
type receiveHooks struct {
	gate       consent.Gate
	renderer   progress.Renderer
	connected  func(ip string)
	extracting func(filename string)
	completed  func(res receiver.Result, extracted []string)
	clipboard  func(text string)
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleReceiveCommand is the receive application.
func handleReceiveCommand(version string, opts receiveOptions, lgr *zap.Logger) error {
	var uiOpts []receiver_tui.Option
	ver, err := semver.Parse(version)
	if err == nil {
		uiOpts = append(uiOpts, receiver_tui.WithVersion(ver))
	}
	ui := receiver_tui.New(viper.GetString("relay"), uiOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		err := receive(ctx, receiveHooks{
			gate:       ui.Gate(),
			renderer:   ui.Renderer(),
			connected:  ui.Connected,
			extracting: ui.Extracting,
			completed:  ui.Completed,
			clipboard:  ui.Clipboard,
		}, opts, lgr)
		ui.Done(err)
		errC <- err
	}()

	runErr := ui.Run()
	cancel()
	err = <-errC
	if runErr != nil {
		return fmt.Errorf("running receiver tui: %w", runErr)
	}
	fmt.Println("")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func handleReceiveCommandRaw(version string, opts receiveOptions, lgr *zap.Logger) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayAddr := viper.GetString("relay")
	ver, err := semver.Parse(version)
	if err != nil {
		return fmt.Errorf("parsing version: %w", err)
	}
	serverVer, err := semver.FetchRelayVersion(ctx, relayAddr)
	if err != nil {
		return fmt.Errorf("fetching version from relay: %w", err)
	}
	if !ver.Compatible(serverVer) {
		return fmt.Errorf("incompatible version %s -> %s", ver, serverVer)
	}

	err = receive(ctx, receiveHooks{
		gate:     consent.NewPrompt(os.Stdin, os.Stdout),
		renderer: progress.NewLineRenderer(os.Stdout),
		connected: func(ip string) {
			fmt.Printf("listening for transfers as %s\n", ip)
		},
		extracting: func(filename string) {
			fmt.Printf("extracting %s\n", filename)
		},
		completed: func(res receiver.Result, extracted []string) {
			fmt.Printf("received %s (%s) -> %s\n", res.FileName, progress.FormatSize(res.Size), res.Path)
			for _, name := range extracted {
				fmt.Printf("  extracted %s\n", name)
			}
		},
		clipboard: func(text string) {
			fmt.Printf("clipboard: %s\n", text)
		},
	}, opts, lgr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// receive registers with the relay and runs a receiver on the connection
// until the relay closes it, ctx is done or, with once set, a transfer completes.
func receive(ctx context.Context, hooks receiveHooks, opts receiveOptions, lgr *zap.Logger) error {
	relayAddr := viper.GetString("relay")
	outputDir := viper.GetString("output_dir")

	selector, err := newSelector(outputDir, lgr)
	if err != nil {
		return err
	}

	client := devices.New(relayAddr, nil)
	ip, err := client.RecordIP(ctx)
	if err != nil {
		return fmt.Errorf("registering with relay: %w", err)
	}
	defer func() {
		// ctx may already be done.
		if err := client.RemoveIP(context.Background()); err != nil {
			lgr.Warn("failed to unregister from relay", zap.Error(err))
		}
	}()

	ws, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws/connect", relayAddr), nil)
	if err != nil {
		return fmt.Errorf("connecting to relay: %w", err)
	}
	c := conn.NewWS(ws)
	defer c.Close("receiver done")
	lgr.Info("connected to relay", zap.String("relay", relayAddr), zap.String("ip", ip))
	if hooks.connected != nil {
		hooks.connected(ip)
	}

	gate := consent.WithTimeout(hooks.gate, viper.GetDuration("consent_timeout"), lgr)
	sink := clip.NewSink(viper.GetBool("sync_clipboard"), hooks.clipboard)

	onComplete := func(res receiver.Result) {
		var extracted []string
		if opts.extract && res.Path != "" && file.IsArchive(res.Path) {
			if hooks.extracting != nil {
				hooks.extracting(res.FileName)
			}
			written, skipped, err := file.Extract(res.Path, outputDir, viper.GetBool("overwrite"))
			if err != nil {
				lgr.Error("failed to extract archive", zap.String("path", res.Path), zap.Error(err))
			} else {
				extracted = written
				if len(skipped) > 0 {
					lgr.Info("skipped existing entries", zap.Strings("skipped", skipped))
				}
				if err := os.Remove(res.Path); err != nil {
					lgr.Warn("failed to remove extracted archive", zap.Error(err))
				}
			}
		}
		if hooks.completed != nil {
			hooks.completed(res, extracted)
		}
	}

	rOpts := []receiver.Option{
		receiver.WithLogger(lgr),
		receiver.WithGate(gate),
		receiver.WithProgress(progress.New(hooks.renderer)),
		receiver.WithClipboard(sink),
		receiver.WithOnComplete(onComplete),
		receiver.RequireConsent(viper.GetBool("require_consent")),
	}
	if opts.once {
		rOpts = append(rOpts, receiver.Once())
	}
	return receiver.New(c, selector, rOpts...).Run(ctx)
}

// newSelector prepares the output directory and the storage selection for it.
func newSelector(outputDir string, lgr *zap.Logger) (*storage.Selector, error) {
	dir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	capability := storage.Probe(dir, viper.GetBool("stream_to_disk"))
	lgr.Debug("probed storage capability", zap.String("dir", dir), zap.Bool("streaming", capability.Streaming()))

	overwrite := viper.GetBool("overwrite")
	picker := storage.DirPicker{Dir: dir, Overwrite: overwrite}
	return storage.NewSelector(capability, picker, storage.SaveToDir(dir, overwrite), lgr), nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojolang/webrec-go/pkg/webrec"
	"github.com/rojolang/webrec-go/pkg/webui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	verbose    bool
	logJSON    bool
	encoding   string
	permission string
	duration   time.Duration
	outputDir  string
	listenAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webrec",
		Short: "Microphone recorder with selectable encodings",
		Long:  "Record the microphone to WAV, Ogg Vorbis, Opus or MP3 from a web page or the terminal",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log JSON instead of console output")
	rootCmd.PersistentFlags().StringVarP(&encoding, "encoding", "e", "", "Encoding to record with (wav, ogg, opus, mp3)")
	rootCmd.PersistentFlags().StringVar(&permission, "permission", "", "Microphone permission policy (granted, denied, prompt)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(formatsCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(setupCmd())

	if err := rootCmd.Execute(); err != nil {
		webrec.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

// loadConfig reads the environment, applies flags and installs the logger.
func loadConfig() (*webrec.RecorderConfig, error) {
	config := webrec.NewRecorderConfig()
	if encoding != "" {
		config.DefaultEncoding = strings.ToLower(encoding)
	}
	if permission != "" {
		config.MicPermission = strings.ToLower(permission)
	}

	level := webrec.ParseLogLevel(config.DebugLevel)
	if verbose {
		level = webrec.DebugLevel
	}
	webrec.SetGlobalLogger(webrec.NewRecorderLogger(&webrec.LogConfig{
		Level:  level,
		Pretty: !logJSON,
		Output: os.Stderr,
	}))
	if level > webrec.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	if issues := config.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			webrec.GetGlobalLogger().Error(issue)
		}
		return nil, webrec.NewConfigError(fmt.Sprintf("%d configuration issue(s)", len(issues)))
	}
	return config, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recording page",
		Long:  "Serve a page with record and stop controls; finished recordings are listed with a player and a download link",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listenAddr != "" {
				os.Setenv("WEBREC_LISTEN_ADDR", listenAddr)
			}
			config, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := webui.NewHub(config.AllowedOrigins)
			prompter := webui.NewHubPrompter(hub, 30*time.Second)
			capturer := webrec.NewPortAudioCapturer(config, prompter)
			ctrl := webrec.NewController(capturer, config, webrec.WithLevelMonitor(hub.LevelMonitor()))
			ctrl.AddStateHandler(webrec.CreateLoggingStateHandler(webrec.GetGlobalLogger()))
			ctrl.AddRecordingHandler(webrec.CreateRecordingLogHandler(webrec.GetGlobalLogger()))
			srv := webui.NewServer(ctrl, hub, config)

			fmt.Printf("🎙  Open http://%s in your browser\n", config.ListenAddr)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				ctrl.Close()
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides WEBREC_LISTEN_ADDR)")
	return cmd
}

// terminalPrompter asks for microphone access on stdin.
type terminalPrompter struct {
	in *bufio.Reader
}

func (p terminalPrompter) Ask(ctx context.Context, _ webrec.Constraints) (bool, error) {
	fmt.Print("Allow webrec to use your microphone? [y/N] ")
	answer := make(chan string, 1)
	go func() {
		line, _ := p.in.ReadString('\n')
		answer <- strings.TrimSpace(strings.ToLower(line))
	}()
	select {
	case a := <-answer:
		return a == "y" || a == "yes", nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one take from the terminal",
		Long:  "Record the microphone until Enter is pressed or --duration elapses, then write the encoded file",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			config.SaveRecordings = true
			if outputDir != "" {
				config.OutputDir = outputDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stdin := bufio.NewReader(os.Stdin)
			capturer := webrec.NewPortAudioCapturer(config, terminalPrompter{in: stdin})
			ctrl := webrec.NewController(capturer, config)
			defer ctrl.Close()

			capturing := make(chan struct{}, 1)
			done := make(chan *webrec.RecordingEntry, 1)
			failed := make(chan *webrec.RecorderError, 1)
			ctrl.AddStateHandler(func(s webrec.StateSnapshot) {
				if s.Status == webrec.StatusCapturing {
					select {
					case capturing <- struct{}{}:
					default:
					}
				}
			})
			ctrl.AddRecordingHandler(func(e *webrec.RecordingEntry) {
				done <- e
			})
			ctrl.AddErrorHandler(func(e *webrec.RecorderError) {
				select {
				case failed <- e:
				default:
				}
			})

			if err := ctrl.Start(); err != nil {
				return err
			}

			select {
			case <-capturing:
			case e := <-failed:
				return e
			case <-ctx.Done():
				ctrl.Stop()
				return nil
			}

			var timer <-chan time.Time
			if duration > 0 {
				fmt.Printf("Recording %s for %s...\n", ctrl.Encoding(), duration)
				timer = time.After(duration)
			} else {
				fmt.Printf("Recording %s... press Enter to stop (time limit %ds)\n", ctrl.Encoding(), config.TimeLimit)
			}
			enter := make(chan struct{})
			go func() {
				stdin.ReadString('\n')
				close(enter)
			}()

			select {
			case <-timer:
			case <-enter:
			case <-ctx.Done():
			case e := <-done:
				return printRecording(e)
			case e := <-failed:
				return e
			}
			ctrl.Stop()

			select {
			case e := <-done:
				return printRecording(e)
			case e := <-failed:
				return e
			case <-time.After(time.Minute):
				return webrec.NewRecorderError("Timed out waiting for the encoder", webrec.ErrCodeTimeout)
			}
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (default: wait for Enter)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to write the recording to (overrides WEBREC_OUTPUT_DIR)")
	return cmd
}

func printRecording(e *webrec.RecordingEntry) error {
	fmt.Printf("✓ %s (%d bytes, %.1fs)\n", e.Filename, e.Size, e.Duration)
	if e.SavedPath != "" {
		fmt.Printf("  saved to %s\n", e.SavedPath)
	}
	if e.Dropped > 0 {
		fmt.Printf("  ⚠ %d audio frames dropped\n", e.Dropped)
	}
	return nil
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List available encodings",
		Long:  "List the registered encodings and whether each one can be loaded here",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println("Encodings:")
			for _, name := range webrec.Codecs() {
				codec, _ := webrec.LookupCodec(name)
				status := "✓"
				if err := codec.Load(config.WorkerDir); err != nil {
					status = "✗ " + err.Error()
				}
				marker := ""
				if name == config.DefaultEncoding {
					marker = " (default)"
				}
				fmt.Printf("  %-5s %-11s %s%s\n", name, codec.MIMEType(), status, marker)
			}
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
		Long:  "Commands for listing and testing input devices",
	}

	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesTestCmd())

	return cmd
}

func devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List input devices",
		Run: func(cmd *cobra.Command, args []string) {
			devices, err := webrec.ListInputDevices()
			if err != nil {
				webrec.GetGlobalLogger().WithError(err).Error("Failed to list audio devices")
				fmt.Printf("Error listing devices: %v\n", err)
				return
			}

			fmt.Println("Input Devices:")
			for _, device := range devices {
				marker := ""
				if device.IsDefault {
					marker = " (Default)"
				}
				fmt.Printf("  %d: %s%s - %d channels (%.0f Hz, %s)\n",
					device.ID, device.Name, marker, device.MaxInputChannels, device.DefaultSampleRate, device.HostAPI)
			}
		},
	}
}

func devicesTestCmd() *cobra.Command {
	var testDuration time.Duration
	cmd := &cobra.Command{
		Use:   "test [device-id]",
		Short: "Test an input device",
		Long:  "Record from an input device for a few seconds and report the peak level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			dm := webrec.NewAudioDeviceManager()
			if err := dm.Initialize(); err != nil {
				return err
			}
			defer dm.Cleanup()

			deviceID := -1
			if len(args) > 0 {
				if deviceID, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid device id %q", args[0])
				}
			} else if config.AudioDeviceID != nil {
				deviceID = *config.AudioDeviceID
			} else {
				for _, d := range dm.GetInputDevices() {
					if d.IsDefault {
						deviceID = d.ID
					}
				}
			}
			if deviceID < 0 {
				return fmt.Errorf("no input device available")
			}

			info, err := dm.GetDeviceInfo(deviceID)
			if err != nil {
				return err
			}
			fmt.Printf("\nDevice Information:\n%s\n", info)

			fmt.Printf("Testing for %s, make some noise...\n", testDuration)
			peak, err := dm.TestDevice(deviceID, float64(config.SampleRate), testDuration)
			if err != nil {
				return err
			}
			fmt.Printf("Peak level: %.3f\n", peak)
			if peak < 0.01 {
				fmt.Println("⚠  Almost no signal; check the input gain or device selection")
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&testDuration, "duration", "d", 3*time.Second, "Test duration")
	return cmd
}

func setupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Setup and configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Long:  "Display the configuration resolved from defaults, .env and WEBREC_* variables",
		Run: func(cmd *cobra.Command, args []string) {
			config := webrec.NewRecorderConfig()
			if encoding != "" {
				config.DefaultEncoding = strings.ToLower(encoding)
			}
			if permission != "" {
				config.MicPermission = strings.ToLower(permission)
			}
			config.PrintConfig()

			issues := config.Validate()
			if len(issues) == 0 {
				fmt.Println("\n✓ Configuration is valid")
				return
			}
			fmt.Println("\nConfiguration issues:")
			for _, issue := range issues {
				fmt.Printf("  ✗ %s\n", issue)
			}
		},
	})

	return cmd
}

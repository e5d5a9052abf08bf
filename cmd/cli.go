// SPDX-License-Identifier: MIT
// Package cmd parses the command line into a validated configuration and
// implements the one-off commands.
package cmd

import (
	"fmt"

	"pitchcoach/internal/config"
	"pitchcoach/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected by ParseArgs.
const (
	CommandTrain   = "train"
	CommandList    = "list"
	CommandNotes   = "notes"
	CommandAnalyze = "analyze"
	CommandVersion = "version"
)

// Options is the parsed command line.
type Options struct {
	Config  *config.Config
	Command string
	Args    []string // Positional arguments of the command.
	Pick    bool     // Choose the input device interactively before training.
	Verbose bool
}

// flagValues receives persistent flags before they are merged into the
// loaded configuration.
type flagValues struct {
	configPath      string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	input           string
	note            string
	record          bool
	output          string
	ws              string
	udp             string
	noTone          bool
	verbose         bool
}

// ParseArgs parses args (without the program name). Flags override the
// configuration file, which overrides the built-in defaults.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{Command: CommandTrain}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           "pitchcoach",
		Short:         "Real-time vocal pitch trainer",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandTrain
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Run the interactive pitch exercise (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandTrain
			return nil
		},
	}
	trainCmd.Flags().BoolVar(&opts.Pick, "pick", false, "Choose the input device interactively")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandList
			return nil
		},
	}

	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Print the note range table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandNotes
			return nil
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run pitch detection over a WAV file and print a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandAnalyze
			opts.Args = args
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandVersion
			return nil
		},
	}

	rootCmd.AddCommand(trainCmd, listCmd, notesCmd, analyzeCmd, versionCmd)

	defaults := config.Default()
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&fv.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml or ./pitchcoach.yaml)")

	// Audio Device Configuration
	pf.IntVarP(&fv.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture; only the first is analysed")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer, which is also the detection window")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.StringVarP(&fv.input, "input", "i", "",
		"Replay a WAV file instead of opening an input device")

	// Exercise
	pf.StringVarP(&fv.note, "note", "n", "",
		"Initial target note id (e.g. A3); random when empty")
	pf.BoolVar(&fv.noTone, "no-tone", false, "Disable reference tone playback")

	// Recording Configuration
	pf.BoolVarP(&fv.record, "record", "r", false,
		"Record every listening period to a WAV file")
	pf.StringVarP(&fv.output, "output", "o", defaults.Recording.OutputDir,
		"Directory for recorded takes")

	// Network
	pf.StringVar(&fv.ws, "ws", defaults.Transport.WebSocketAddress,
		"Serve session snapshots over WebSocket on this address")
	pf.Lookup("ws").NoOptDefVal = defaults.Transport.WebSocketAddress
	pf.StringVar(&fv.udp, "udp", defaults.Transport.UDPTargetAddress,
		"Stream detection packets over UDP to this address")
	pf.Lookup("udp").NoOptDefVal = defaults.Transport.UDPTargetAddress

	// Debug Configuration
	pf.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.SetArgs(args)
	executed, err := rootCmd.ExecuteC()
	if err != nil {
		return nil, err
	}
	// --help and --version are handled by cobra and leave nothing to run.
	if help, _ := executed.Flags().GetBool("help"); help {
		return nil, nil
	}
	if v := rootCmd.Flags().Lookup("version"); v != nil && v.Changed {
		return nil, nil
	}

	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return nil, err
	}
	fv.apply(cfg, rootCmd)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	cfg.Command = opts.Command
	opts.Config = cfg
	opts.Verbose = fv.verbose
	return opts, nil
}

// apply copies every flag the user set onto cfg.
func (fv *flagValues) apply(cfg *config.Config, cmd *cobra.Command) {
	changed := cmd.PersistentFlags().Changed

	if changed("device") {
		cfg.Audio.InputDevice = fv.deviceID
	}
	if changed("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if changed("input") {
		cfg.Audio.InputFile = fv.input
	}
	if changed("note") {
		cfg.Session.StartNote = fv.note
	}
	if changed("no-tone") {
		cfg.Tone.Enabled = !fv.noTone
	}
	if changed("record") {
		cfg.Recording.Enabled = fv.record
	}
	if changed("output") {
		cfg.Recording.OutputDir = fv.output
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = fv.ws
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = fv.udp
	}
	if fv.verbose {
		cfg.LogLevel = "debug"
	}
}

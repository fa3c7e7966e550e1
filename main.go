// Package main provides the entry point for the Recite CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/cache"
	"github.com/dgnsrekt/recite/internal/chunk"
	"github.com/dgnsrekt/recite/internal/loop"
	"github.com/dgnsrekt/recite/internal/navbridge"
	"github.com/dgnsrekt/recite/internal/observe"
	"github.com/dgnsrekt/recite/internal/playback"
	"github.com/dgnsrekt/recite/internal/prefs"
	"github.com/dgnsrekt/recite/internal/source"
	"github.com/dgnsrekt/recite/internal/speech"
	"github.com/dgnsrekt/recite/internal/speech/espeak"
	"github.com/dgnsrekt/recite/internal/speech/mock"
	"github.com/dgnsrekt/recite/internal/speech/piper"
	"github.com/dgnsrekt/recite/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const (
	engineMock   = "mock"
	engineEspeak = "espeak"
	enginePiper  = "piper"

	bridgeDialTimeout      = 5 * time.Second
	metricsShutdownTimeout = 2 * time.Second
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	engines = []string{engineMock, engineEspeak, enginePiper}

	configFile string
	engine     string
	voice      string
	autoplay   bool
	mouse      bool
	chunker    chunk.Chunker

	rootCmd = &cobra.Command{
		Use:   "recite [FILE|-]",
		Short: "Read text aloud in the terminal, following along as it goes",
		Long: paragraph(
			fmt.Sprintf("\nRead text aloud in the terminal and %s as it is spoken.", keyword("follow along")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{"md", "markdown", "txt"}, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(_ *cobra.Command) error {
	// grab config values from Viper
	engine = strings.ToLower(viper.GetString("engine"))
	voice = viper.GetString("voice")
	autoplay = viper.GetBool("autoplay")
	mouse = viper.GetBool("mouse")
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	valid := false
	for _, e := range engines {
		if engine == e {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("unknown engine %q: use one of %s", engine, strings.Join(engines, ", "))
	}

	c, err := chunk.New(viper.GetInt("chunk.min"), viper.GetInt("chunk.max"))
	if err != nil {
		return fmt.Errorf("invalid chunk settings: %w", err)
	}
	chunker = c

	if cps := viper.GetFloat64("narration.baseline_cps"); cps <= 0 {
		return fmt.Errorf("narration.baseline_cps must be positive, got %.2f", cps)
	}
	if f := viper.GetFloat64("narration.watchdog_factor"); f < 0 {
		return fmt.Errorf("narration.watchdog_factor must not be negative, got %.2f", f)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(_ *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("recite needs a terminal to display the text it reads")
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	if path == "" {
		yes, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if !yes {
			return errors.New("nothing to read: pass a file or pipe text on stdin")
		}
		path = source.Stdin
	}
	return runTUI(path, os.Stdin)
}

// wallClock runs callbacks on timer goroutines.
type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) loop.Timer { return time.AfterFunc(d, f) }

// voiceLister is implemented by backends that can enumerate their voices.
type voiceLister interface {
	Voices() ([]speech.Voice, error)
}

func newBackend(logger *log.Logger) (speech.Backend, error) {
	switch engine {
	case engineEspeak:
		b := espeak.New(viper.GetString("espeak.binary"), logger.WithPrefix("espeak"))
		if err := b.Available(); err != nil {
			return nil, fmt.Errorf("espeak: %w", err)
		}
		return b, nil
	case enginePiper:
		b := piper.New(
			viper.GetString("piper.binary"),
			viper.GetString("piper.model"),
			piper.NewOtoPlayer(),
			logger.WithPrefix("piper"),
		)
		if err := b.Available(); err != nil {
			return nil, fmt.Errorf("piper: %w", err)
		}
		if c, err := openAudioCache(); err != nil {
			log.Warn("Synthesised audio will not be cached", "error", err)
		} else if c != nil {
			b.SetCache(c)
		}
		return b, nil
	default:
		return mock.New(wallClock{}), nil
	}
}

// openAudioCache opens the piper audio cache, or returns nil when it is
// disabled.
func openAudioCache() (*cache.Disk, error) {
	mb := viper.GetInt64("piper.cache_mb")
	if mb <= 0 {
		return nil, nil
	}
	dir, err := gap.NewScope(gap.User, "recite").CacheDir()
	if err != nil {
		return nil, err
	}
	return cache.Open(filepath.Join(dir, "audio"), mb<<20)
}

// resolveVoice turns the configured hint into a backend voice id. Backends
// that cannot list voices get the hint as is.
func resolveVoice(b speech.Backend, hint string) string {
	if hint == "" {
		return ""
	}
	vl, ok := b.(voiceLister)
	if !ok {
		return hint
	}
	voices, err := vl.Voices()
	if err != nil {
		log.Warn("Could not list voices", "engine", engine, "error", err)
		return hint
	}
	v, ok := speech.PickVoice(hint, voices)
	if !ok {
		log.Warn("No voice matches", "hint", hint)
		return ""
	}
	log.Debug("Picked voice", "hint", hint, "id", v.ID, "name", v.Name)
	return v.ID
}

func newStore(logger *log.Logger) (*prefs.Store, error) {
	p := viper.GetString("state_file")
	if p == "" {
		var err error
		if p, err = prefs.DefaultPath(); err != nil {
			return nil, err
		}
	}
	kv, err := prefs.NewFileKV(p)
	if err != nil {
		return nil, fmt.Errorf("unable to open state file: %w", err)
	}
	log.Debug("Using state file", "path", kv.Path())
	return prefs.NewStore(kv, logger.WithPrefix("prefs")), nil
}

func playbackConfig(voiceID string) playback.Config {
	c := playback.DefaultConfig()
	c.Chunker = chunker
	c.Position.BaselineCPS = viper.GetFloat64("narration.baseline_cps")
	c.WatchdogFactor = viper.GetFloat64("narration.watchdog_factor")
	c.Voice = voiceID
	return c
}

func runTUI(path string, stdin io.Reader) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Path = path
	cfg.Autoplay = autoplay
	cfg.EnableMouse = cfg.EnableMouse || mouse
	cfg.Keys = navbridge.KeyMap{
		Toggle: viper.GetString("keys.toggle"),
		Prev:   viper.GetString("keys.prev"),
		Next:   viper.GetString("keys.next"),
	}

	logger := log.Default()
	backend, err := newBackend(logger)
	if err != nil {
		return err
	}
	store, err := newStore(logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMetrics := func(context.Context) error { return nil }
	if viper.GetBool("debug") {
		shutdownMetrics, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: Version,
			Exporter:       observe.NewLogExporter(logger),
		})
		if err != nil {
			return fmt.Errorf("unable to start metrics: %w", err)
		}
	}

	n := ui.Narration{
		Backend:  backend,
		Store:    store,
		Playback: playbackConfig(resolveVoice(backend, voice)),
		Metrics:  observe.DefaultMetrics(),
		Logger:   logger,
		Stdin:    stdin,
	}

	var ws *navbridge.WSChannel
	if u := viper.GetString("bridge.url"); u != "" {
		dctx, dcancel := context.WithTimeout(ctx, bridgeDialTimeout)
		ws, err = navbridge.DialWS(dctx, u, logger.WithPrefix("ws"))
		dcancel()
		if err != nil {
			_ = shutdownMetrics(context.Background())
			return fmt.Errorf("unable to reach host: %w", err)
		}
		n.Channel = ws
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		// Run Bubble Tea program
		if _, err := ui.NewProgram(cfg, n).Run(); err != nil {
			return fmt.Errorf("unable to run tui program: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// flush the last interval before the log file closes
		sctx, scancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer scancel()
		return shutdownMetrics(sctx)
	})
	if ws != nil {
		g.Go(func() error {
			<-ctx.Done()
			return ws.Close()
		})
	}
	return g.Wait()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	keys := navbridge.DefaultKeyMap()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringP("engine", "e", engineMock, "speech engine: "+strings.Join(engines, ", "))
	rootCmd.Flags().StringP("voice", "v", "", "voice name or language, e.g. \"vi\" (piper: model path)")
	rootCmd.Flags().BoolP("autoplay", "a", false, "start reading once the first key is pressed")
	rootCmd.Flags().BoolP("mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().Bool("debug", false, "log at debug level")
	rootCmd.Flags().Int("chunk-min", chunk.DefaultMin, "shortest chunk to cut at a sentence end")
	rootCmd.Flags().Int("chunk-max", chunk.DefaultMax, "longest chunk sent to the engine")
	rootCmd.Flags().Float64("watchdog", 0, "treat an utterance silent for this many times its expected length as failed (0 disables)")
	rootCmd.Flags().String("bridge", "", "websocket URL of a host application to exchange navigation commands with")
	rootCmd.Flags().String("toggle-key", keys.Toggle, "play/stop shortcut")
	rootCmd.Flags().String("prev-key", keys.Prev, "previous document shortcut")
	rootCmd.Flags().String("next-key", keys.Next, "next document shortcut")

	// Config bindings
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("autoplay", rootCmd.Flags().Lookup("autoplay"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))
	_ = viper.BindPFlag("chunk.min", rootCmd.Flags().Lookup("chunk-min"))
	_ = viper.BindPFlag("chunk.max", rootCmd.Flags().Lookup("chunk-max"))
	_ = viper.BindPFlag("narration.watchdog_factor", rootCmd.Flags().Lookup("watchdog"))
	_ = viper.BindPFlag("bridge.url", rootCmd.Flags().Lookup("bridge"))
	_ = viper.BindPFlag("keys.toggle", rootCmd.Flags().Lookup("toggle-key"))
	_ = viper.BindPFlag("keys.prev", rootCmd.Flags().Lookup("prev-key"))
	_ = viper.BindPFlag("keys.next", rootCmd.Flags().Lookup("next-key"))

	viper.SetDefault("engine", engineMock)
	viper.SetDefault("chunk.min", chunk.DefaultMin)
	viper.SetDefault("chunk.max", chunk.DefaultMax)
	viper.SetDefault("narration.baseline_cps", 14.0)
	viper.SetDefault("narration.watchdog_factor", 0.0)
	viper.SetDefault("espeak.binary", espeak.DefaultBinary)
	viper.SetDefault("piper.binary", "piper")
	viper.SetDefault("piper.model", "")
	viper.SetDefault("piper.cache_mb", 100)
	viper.SetDefault("keys.toggle", keys.Toggle)
	viper.SetDefault("keys.prev", keys.Prev)
	viper.SetDefault("keys.next", keys.Next)
	viper.SetDefault("state_file", "")

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "recite")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "recite")}, dirs...)
	}

	if c := os.Getenv("RECITE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("recite")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("recite")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "recite.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech engine: mock, espeak or piper
engine: "mock"
# voice name or language to prefer, e.g. "vi" (piper: path to a model)
voice: ""
# start reading the first document once a key is pressed
autoplay: false
# mouse support
mouse: false
# log at debug level
debug: false

# how text is cut into utterances
chunk:
  min: 400
  max: 900

narration:
  # assumed speaking speed at rate 1.0, in characters per second
  baseline_cps: 14
  # fail an utterance that stays silent this many times its expected length
  # (0 disables)
  watchdog_factor: 0

espeak:
  binary: "espeak-ng"

piper:
  binary: "piper"
  # model: "~/.local/share/piper/en_US-lessac-medium.onnx"
  # synthesised audio kept on disk, in megabytes (0 disables)
  cache_mb: 100

# websocket URL of a host application to exchange navigation commands with
bridge:
  url: ""

keys:
  toggle: "f8"
  prev: "f7"
  next: "f9"

# where rate and pitch are remembered (default: user data dir)
state_file: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the recite config file",
	Long:    paragraph(fmt.Sprintf("\n%s the recite config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("recite config\nrecite config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Recite", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

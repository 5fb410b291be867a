package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/nomasters/sockread/config"
	"github.com/nomasters/sockread/logger"
	"github.com/nomasters/sockread/reader"
	"github.com/spf13/cobra"
)

// Execute is the primary command used by sockread
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sockread",
		Short: "Print whatever a Unix-domain socket sends",
		Long: `sockread connects to a Unix-domain stream socket and prints the text it
receives until the peer closes the connection.

In buffered mode (the default) bytes are held back until they form valid
UTF-8, so characters split across reads are printed whole. Chunk mode
decodes every read on its own and fails on a split character.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRead,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.StringP("path", "p", reader.DefaultPath, "path of the Unix-domain socket")
	pf.Int("chunk-size", reader.DefaultChunkSize, "bytes per read (reader) or per write (serve)")
	pf.String("log-level", "info", "log level: debug, info, warn, error, or silent")
	pf.String("log-file", "", "write logs to a rotating file instead of stderr")
	pf.BoolP("quiet", "q", false, "disable logging output (same as --log-level=silent)")

	cmd.Flags().String("mode", "buffered", "decode mode: buffered or chunk")

	cmd.AddCommand(newServeCmd())
	return cmd
}

// loadConfig resolves the configuration: defaults, config file, environment,
// then any flag set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("path") {
		c.Path, _ = flags.GetString("path")
	}
	if flags.Changed("chunk-size") {
		c.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if f := flags.Lookup("mode"); f != nil && f.Changed {
		c.Mode = f.Value.String()
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		c.LogFile, _ = flags.GetString("log-file")
	}
	if quiet, _ := flags.GetBool("quiet"); quiet {
		c.LogLevel = logger.LevelSilent
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// newLogger builds the logger for c. The returned func releases the log file.
func newLogger(c *config.Config, stderr io.Writer) (logger.Logger, func()) {
	if c.LogLevel == logger.LevelSilent {
		return logger.NewNoOp(), func() {}
	}
	if c.LogFile != "" {
		log, closer := logger.NewFile(logger.FileConfig{Path: c.LogFile}, c.LogLevel)
		return log, func() { closer.Close() }
	}
	return logger.NewWithWriter(stderr, c.LogLevel), func() {}
}

func runRead(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, closeLog := newLogger(c, cmd.ErrOrStderr())
	defer closeLog()

	rc := c.ReaderConfig()
	rc.Output = cmd.OutOrStdout()
	rc.Logger = log
	r, err := reader.New(rc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	_, err = r.Run(ctx)
	if stderrors.Is(err, context.Canceled) {
		log.Info("Interrupted, connection closed")
		return nil
	}
	return err
}

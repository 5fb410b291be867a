package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nomasters/sockread/errors"
	"github.com/nomasters/sockread/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [text...]",
		Short: "Stream a payload to every client of a Unix-domain socket.",
		Long: `Serve listens on the socket path and writes a payload to each client
in --chunk-size pieces, then closes the connection. The payload is the
joined arguments, or the contents of --file ("-" reads stdin).

It is the peer sockread expects on the other end of the socket.`,
		Example: `  sockread serve --path ./123.sock "héllo wörld"
  sockread serve --chunk-size 1 --interval 10ms --file notes.txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	cmd.Flags().StringP("file", "f", "", `read the payload from a file, "-" for stdin`)
	cmd.Flags().Duration("interval", 0, "pause between writes")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	file, _ := cmd.Flags().GetString("file")
	switch {
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case file != "":
		return os.ReadFile(file)
	default:
		return []byte(strings.Join(args, " ")), nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	payload, err := readPayload(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	interval, _ := cmd.Flags().GetDuration("interval")

	log, closeLog := newLogger(c, cmd.ErrOrStderr())
	defer closeLog()

	srv := server.New(&server.Config{
		Payload:   payload,
		ChunkSize: c.ChunkSize,
		Interval:  interval,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(c.Path)
	}()
	fmt.Fprintln(cmd.OutOrStdout(), "listening on:", c.Path)

	select {
	case err := <-serverDone:
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error during shutdown: %v", err)
	}
	if err := <-serverDone; err != nil && !stderrors.Is(err, errors.ErrServerClosed) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}

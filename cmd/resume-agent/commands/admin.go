package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/prompt"
	"github.com/Jiangye-Song/resume-agent/internal/server"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// NewPasscodeCmd constructs `resume-agent passcode`, which manages the admin
// panel passcode. Only its SHA-256 digest is stored.
func NewPasscodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passcode",
		Short: "Manage the admin panel passcode",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set [passcode]",
		Short: "Set the admin passcode (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var code string
			if len(args) == 1 {
				code = args[0]
			} else {
				var err error
				if code, err = readLine(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("passcode: %w", err)
				}
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return errors.New("passcode: passcode must not be empty")
			}

			s, err := openStore(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("passcode: %w", err)
			}
			defer func() { _ = s.Close() }()

			if err := s.SetConfig(ctx, store.KeyPanelPasscode, server.HashPasscode(code)); err != nil {
				return fmt.Errorf("passcode: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "admin passcode updated")
			return nil
		},
	})
	return cmd
}

// NewPromptCmd constructs `resume-agent prompt`, which reads and writes the
// system prompt used by the direct RAG path.
func NewPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Show or set the direct RAG system prompt",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configured prompt (or the built-in default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("prompt: %w", err)
			}
			defer func() { _ = s.Close() }()

			p, err := prompt.StoreLoader(s)(ctx)
			if err != nil {
				return fmt.Errorf("prompt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [file]",
		Short: "Set the prompt from a file, or stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("prompt: %w", err)
				}
				defer func() { _ = f.Close() }()
				src = f
			}
			b, err := io.ReadAll(src)
			if err != nil {
				return fmt.Errorf("prompt: read: %w", err)
			}
			text := strings.TrimSpace(string(b))
			if text == "" {
				return errors.New("prompt: prompt must not be empty")
			}

			s, err := openStore(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("prompt: %w", err)
			}
			defer func() { _ = s.Close() }()

			if err := s.SetConfig(ctx, store.KeySystemPrompt, text); err != nil {
				return fmt.Errorf("prompt: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "system prompt updated (%d chars); running servers pick it up within the cache TTL\n", len(text))
			return nil
		},
	})
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

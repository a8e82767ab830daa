package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

func newRenderCmd() *cobra.Command {
	var (
		outPath  string
		htmlOnly bool
	)
	cmd := &cobra.Command{
		Use:   "render <request.json|->",
		Short: "Render one request file to an image without starting the server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			req, err := readRequest(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if htmlOnly {
				markup, err := a.service.RenderHTML(cmd.Context(), req)
				if err != nil {
					return err //nolint:wrapcheck // already descriptive
				}
				return writeOutput(cmd.OutOrStdout(), outPath, []byte(markup))
			}

			result, err := a.service.Render(cmd.Context(), req)
			if err != nil {
				return err //nolint:wrapcheck // already descriptive
			}
			if outPath == "" {
				outPath = "render." + result.Format.Extension()
			}
			if err := writeOutput(cmd.OutOrStdout(), outPath, result.Data); err != nil {
				return err
			}
			e.logger.Info("render written",
				zap.String("path", outPath),
				zap.Int("bytes", len(result.Data)),
				zap.String("archive_uri", result.ArchiveURI),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, - for stdout (default render.<format>)")
	cmd.Flags().BoolVar(&htmlOnly, "html", false, "print the resolved HTML instead of rendering")
	return cmd
}

func readRequest(stdin io.Reader, path string) (render.Request, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return render.Request{}, fmt.Errorf("read request: %w", err)
	}
	var req render.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return render.Request{}, fmt.Errorf("parse request: %w", err)
	}
	return req, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err //nolint:wrapcheck // stdout
	}
	if strings.HasSuffix(path, string(os.PathSeparator)) {
		return fmt.Errorf("output path %q is a directory", path)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

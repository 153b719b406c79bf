package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"
)

func (a *cliApp) generateCmd() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Generate a resource request from a plain-English description",
		ArgsUsage: "<description...>",
		Description: `Asks the configured model to translate the description into a Cloud Control
resource document, then asks for suggested changes (placeholders to replace,
settings worth reviewing). Nothing is submitted.

# Examples

  cloudysetup generate create an S3 bucket with versioning enabled
  cloudysetup generate --save bucket.json create an S3 bucket
  cloudysetup generate --save s3://my-templates/queue.json an SQS FIFO queue`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "save",
				Usage: "Save the generated document to a file path or s3://bucket/key",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			action := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(action) == "" {
				return fmt.Errorf("a description is required, e.g. cloudysetup generate create an s3 bucket")
			}
			svc, err := a.serviceFromCmd(cmd)
			if err != nil {
				return err
			}
			creds := credentialsFromCmd(cmd)
			tmpl, err := svc.Generate(ctx, creds, action)
			if err != nil {
				return err
			}
			if location := cmd.String("save"); location != "" {
				if err := svc.Templates(creds).Save(ctx, location, tmpl.Configuration); err != nil {
					return fmt.Errorf("save template: %w", err)
				}
				fmt.Fprintf(a.stderr, "saved to %s\n", location)
			}
			return a.render(cmd, tmpl, func(w io.Writer) { writeTemplateText(w, tmpl) })
		},
	}
}

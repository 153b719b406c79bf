package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

func maxAttemptsFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "max-attempts",
		Usage:   "Maximum number of status queries (default: config max_attempts)",
		Sources: cli.EnvVars(cloudysetup.EnvMaxAttempts),
	}
}

func waitFlag(value bool) cli.Flag {
	return &cli.BoolFlag{
		Name:  "wait",
		Value: value,
		Usage: "Poll the request until it reaches a terminal status",
	}
}

func typeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "type",
		Aliases:  []string{"t"},
		Required: true,
		Usage:    "Resource type name, e.g. AWS::S3::Bucket",
	}
}

func identifierFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Required: true,
		Usage:    "Primary identifier of the resource",
	}
}

func (a *cliApp) applyCmd() *cli.Command {
	return &cli.Command{
		Name:      "apply",
		Usage:     "Submit a resource request and follow it to completion",
		ArgsUsage: "[description...]",
		Description: `Submits a saved resource document (--template) or one generated from the
description, then polls the request with exponential backoff.

Exit status is 0 on SUCCESS, 3 on FAILED or CANCELLED, and 2 when polling
gave up before the request settled (run "cloudysetup status <token>" later).

# Examples

  cloudysetup apply --template bucket.json
  cloudysetup apply --template s3://my-templates/queue.json --max-attempts 20
  cloudysetup apply create an SNS topic called alerts`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "template",
				Usage: "Resource document to submit: a file path or s3://bucket/key",
			},
			waitFlag(true),
			maxAttemptsFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, err := a.serviceFromCmd(cmd)
			if err != nil {
				return err
			}
			creds := credentialsFromCmd(cmd)

			var desc cloudysetup.ResourceDescriptor
			action := strings.Join(cmd.Args().Slice(), " ")
			switch location := cmd.String("template"); {
			case location != "" && action != "":
				return fmt.Errorf("give either --template or a description, not both")
			case location != "":
				desc, err = svc.Templates(creds).Load(ctx, location)
				if err != nil {
					return err
				}
			case strings.TrimSpace(action) != "":
				tmpl, err := svc.Generate(ctx, creds, action)
				if err != nil {
					return err
				}
				for _, s := range tmpl.Suggestions {
					fmt.Fprintf(a.stderr, "suggestion: %s\n", s)
				}
				desc = tmpl.Configuration
			default:
				return fmt.Errorf("nothing to apply: pass --template or a description")
			}
			return a.dispatch(ctx, cmd, svc, desc)
		},
	}
}

func (a *cliApp) getCmd() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Show the current state of one resource",
		Flags: []cli.Flag{typeFlag(), identifierFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			desc := cloudysetup.ResourceDescriptor{
				TypeName:   cmd.String("type"),
				Identifier: cmd.String("id"),
				Operation:  cloudysetup.OpRead,
			}
			err := a.dispatchFlags(ctx, cmd, desc)
			if ce := cloudysetup.AsControlPlaneError(err); ce != nil && ce.NotFound() {
				return fmt.Errorf("%s %q not found", desc.TypeName, desc.Identifier)
			}
			return err
		},
	}
}

func (a *cliApp) listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List resources of one type",
		Flags: []cli.Flag{typeFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.dispatchFlags(ctx, cmd, cloudysetup.ResourceDescriptor{
				TypeName:  cmd.String("type"),
				Operation: cloudysetup.OpList,
			})
		},
	}
}

func (a *cliApp) deleteCmd() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete one resource",
		Flags: []cli.Flag{typeFlag(), identifierFlag(), waitFlag(true), maxAttemptsFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.dispatchFlags(ctx, cmd, cloudysetup.ResourceDescriptor{
				TypeName:   cmd.String("type"),
				Identifier: cmd.String("id"),
				Operation:  cloudysetup.OpDelete,
			})
		},
	}
}

func (a *cliApp) dispatchFlags(ctx context.Context, cmd *cli.Command, desc cloudysetup.ResourceDescriptor) error {
	svc, err := a.serviceFromCmd(cmd)
	if err != nil {
		return err
	}
	return a.dispatch(ctx, cmd, svc, desc)
}

// dispatch submits desc, polls when --wait is set and renders the result.
func (a *cliApp) dispatch(
	ctx context.Context, cmd *cli.Command, svc *cloudysetup.Service, desc cloudysetup.ResourceDescriptor,
) error {
	opts := cloudysetup.PollOptions{
		MaxAttempts: cmd.Int("max-attempts"),
		Observer:    consoleObserver{w: a.stderr},
	}
	res, outcome, err := svc.Dispatch(ctx, credentialsFromCmd(cmd), desc, cmd.Bool("wait"), opts)
	if err != nil && res == nil {
		return err
	}
	view := newDispatchView(res, outcome)
	if rerr := a.render(cmd, view, func(w io.Writer) { writeDispatchText(w, view) }); rerr != nil {
		return rerr
	}
	if err != nil {
		return &exitCodeError{code: exitInconclusive, msg: err.Error()}
	}
	return outcomeExit(outcome)
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// tokenArg returns the single request-token argument.
func tokenArg(cmd *cli.Command) (cloudysetup.RequestToken, error) {
	if cmd.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one request token, got %d arguments", cmd.NArg())
	}
	return cloudysetup.RequestToken(cmd.Args().First()), nil
}

func (a *cliApp) statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Poll an existing request until it settles",
		ArgsUsage: "<request-token>",
		Description: `Queries the request with the same backoff as apply. With --once a single
status query is made and printed.

Exit status follows apply: 0 SUCCESS, 3 FAILED or CANCELLED, 2 still running.`,
		Flags: []cli.Flag{
			maxAttemptsFlag(),
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Make one status query instead of polling",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, err := tokenArg(cmd)
			if err != nil {
				return err
			}
			svc, err := a.serviceFromCmd(cmd)
			if err != nil {
				return err
			}
			creds := credentialsFromCmd(cmd)

			if cmd.Bool("once") {
				ev, err := svc.QueryStatus(ctx, creds, token)
				if err != nil {
					return err
				}
				if err := a.render(cmd, ev, func(w io.Writer) { writeProgressText(w, ev) }); err != nil {
					return err
				}
				if ev.OperationStatus.IsTerminal() {
					return outcomeExit(&cloudysetup.PollOutcome{Status: ev.OperationStatus})
				}
				return &exitCodeError{code: exitInconclusive}
			}

			outcome, err := svc.Poll(ctx, creds, token, cloudysetup.PollOptions{
				MaxAttempts: cmd.Int("max-attempts"),
				Observer:    consoleObserver{w: a.stderr},
			})
			if outcome == nil {
				return err
			}
			view := newOutcomeView(outcome)
			if rerr := a.render(cmd, view, func(w io.Writer) { writeOutcomeText(w, view) }); rerr != nil {
				return rerr
			}
			if err != nil {
				return &exitCodeError{code: exitInconclusive, msg: err.Error()}
			}
			return outcomeExit(outcome)
		},
	}
}

func (a *cliApp) cancelCmd() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Ask the control plane to cancel an in-flight request",
		ArgsUsage: "<request-token>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, err := tokenArg(cmd)
			if err != nil {
				return err
			}
			svc, err := a.serviceFromCmd(cmd)
			if err != nil {
				return err
			}
			ev, err := svc.Cancel(ctx, credentialsFromCmd(cmd), token)
			if err != nil {
				return err
			}
			return a.render(cmd, ev, func(w io.Writer) { writeProgressText(w, ev) })
		},
	}
}

func writeProgressText(w io.Writer, ev *cloudysetup.ProgressEvent) {
	fmt.Fprintf(w, "Request token: %s\n", ev.RequestToken)
	fmt.Fprintf(w, "Status: %s\n", statusColor(ev.OperationStatus).Sprint(ev.OperationStatus))
	if ev.Operation != "" {
		fmt.Fprintf(w, "Operation: %s %s\n", ev.Operation, ev.TypeName)
	}
	if ev.Identifier != "" {
		fmt.Fprintf(w, "Identifier: %s\n", ev.Identifier)
	}
	if ev.StatusMessage != "" {
		fmt.Fprintf(w, "Message: %s\n", ev.StatusMessage)
	}
	if ev.ErrorCode != "" {
		fmt.Fprintf(w, "Error code: %s\n", ev.ErrorCode)
	}
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// credentialsFromCmd collects the explicit AWS keys given on the command
// line or in the environment. Empty keys fall back to the default chain.
func credentialsFromCmd(cmd *cli.Command) cloudysetup.Credentials {
	return cloudysetup.Credentials{
		AccessKey:    cmd.String("access-key"),
		SecretKey:    cmd.String("secret-key"),
		SessionToken: cmd.String("session-token"),
	}
}

func (a *cliApp) whoamiCmd() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the AWS account and principal behind the configured credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, err := a.serviceFromCmd(cmd)
			if err != nil {
				return err
			}
			id, err := svc.Identity(ctx, credentialsFromCmd(cmd))
			if err != nil {
				return err
			}
			return a.render(cmd, id, func(w io.Writer) {
				fmt.Fprintf(w, "Account: %s\nARN:     %s\nUserID:  %s\nRegion:  %s\n",
					id.Account, id.ARN, id.UserID, id.Region)
			})
		},
	}
}

func (a *cliApp) helloCmd() *cli.Command {
	return &cli.Command{
		Name:  "hello",
		Usage: "Print a greeting",
		Action: func(_ context.Context, _ *cli.Command) error {
			fmt.Fprintln(a.stdout, "Hello World")
			return nil
		},
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// outputFormat selects how command results are written to stdout.
type outputFormat string

// Supported output formats.
const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

// parseOutputFormat extracts and validates the --format flag.
func parseOutputFormat(cmd *cli.Command) (outputFormat, error) {
	f := outputFormat(strings.ToLower(cmd.String("format")))
	switch f {
	case formatText, formatJSON, formatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format: %q, valid formats are: text, json, yaml", f)
}

// render writes v to stdout in the selected format. text renders the
// human-readable form.
func (a *cliApp) render(cmd *cli.Command, v any, text func(w io.Writer)) error {
	f, err := parseOutputFormat(cmd)
	if err != nil {
		return err
	}
	switch f {
	case formatJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(a.stdout)
		return nil
	}
}

// dispatchView is the printable form of a dispatch plus its poll outcome.
type dispatchView struct {
	Operation    cloudysetup.Operation       `json:"operation" yaml:"operation"`
	RequestToken cloudysetup.RequestToken    `json:"requestToken,omitempty" yaml:"requestToken,omitempty"`
	Status       cloudysetup.OperationStatus `json:"status" yaml:"status"`
	Resource     *cloudysetup.ResourceModel  `json:"resource,omitempty" yaml:"resource,omitempty"`
	Resources    []cloudysetup.ResourceModel `json:"resources,omitempty" yaml:"resources,omitempty"`
	Truncated    bool                        `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Outcome      *outcomeView                `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Progress     *cloudysetup.ProgressEvent  `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// outcomeView is the printable form of a PollOutcome.
type outcomeView struct {
	Token        cloudysetup.RequestToken    `json:"token" yaml:"token"`
	Status       cloudysetup.OperationStatus `json:"status" yaml:"status"`
	Reason       string                      `json:"reason" yaml:"reason"`
	Attempts     int                         `json:"attempts" yaml:"attempts"`
	Exhausted    bool                        `json:"exhausted" yaml:"exhausted"`
	LastObserved cloudysetup.OperationStatus `json:"lastObserved,omitempty" yaml:"lastObserved,omitempty"`
	Details      *cloudysetup.ProgressEvent  `json:"details,omitempty" yaml:"details,omitempty"`
}

func newOutcomeView(o *cloudysetup.PollOutcome) *outcomeView {
	if o == nil {
		return nil
	}
	return &outcomeView{
		Token:        o.Token,
		Status:       o.Status,
		Reason:       o.Reason,
		Attempts:     len(o.Attempts),
		Exhausted:    o.Exhausted,
		LastObserved: o.LastObserved,
		Details:      o.Details,
	}
}

func newDispatchView(res *cloudysetup.DispatchResult, o *cloudysetup.PollOutcome) *dispatchView {
	v := &dispatchView{
		Operation:    res.Operation,
		RequestToken: res.RequestToken,
		Status:       res.Status,
		Resource:     res.Resource,
		Resources:    res.Resources,
		Truncated:    res.Truncated,
		Outcome:      newOutcomeView(o),
	}
	if o == nil {
		v.Progress = res.Progress
	}
	return v
}

func writeDispatchText(w io.Writer, v *dispatchView) {
	switch {
	case v.Resource != nil:
		writeResource(w, *v.Resource)
	case v.Operation == cloudysetup.OpList:
		for _, r := range v.Resources {
			fmt.Fprintln(w, r.Identifier)
		}
		if v.Truncated {
			fmt.Fprintln(w, color.YellowString("(list truncated; more resources exist)"))
		}
	default:
		fmt.Fprintf(w, "Request token: %s\n", v.RequestToken)
		if v.Outcome != nil {
			writeOutcomeText(w, v.Outcome)
		} else {
			fmt.Fprintf(w, "Status: %s\n", v.Status)
			fmt.Fprintf(w, "Follow with: cloudysetup status %s\n", v.RequestToken)
		}
	}
}

func writeOutcomeText(w io.Writer, o *outcomeView) {
	fmt.Fprintf(w, "Status: %s\n", statusColor(o.Status).Sprint(o.Status))
	if o.Exhausted {
		fmt.Fprintf(w, "Gave up after %d attempts; last observed %s\n", o.Attempts, orUnknown(o.LastObserved))
		fmt.Fprintf(w, "Check again with: cloudysetup status %s\n", o.Token)
	} else if o.Reason == cloudysetup.ReasonCancelled {
		fmt.Fprintf(w, "Polling interrupted after %d attempts\n", o.Attempts)
	}
	if d := o.Details; d != nil {
		if d.Identifier != "" {
			fmt.Fprintf(w, "Identifier: %s\n", d.Identifier)
		}
		if d.StatusMessage != "" {
			fmt.Fprintf(w, "Message: %s\n", d.StatusMessage)
		}
		if d.ErrorCode != "" {
			fmt.Fprintf(w, "Error code: %s\n", d.ErrorCode)
		}
	}
}

func writeResource(w io.Writer, r cloudysetup.ResourceModel) {
	fmt.Fprintf(w, "%s %s\n", r.TypeName, r.Identifier)
	if r.Properties == "" {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(r.Properties), "", "  "); err != nil {
		fmt.Fprintln(w, r.Properties)
		return
	}
	fmt.Fprintln(w, buf.String())
}

func writeTemplateText(w io.Writer, t *cloudysetup.Template) {
	doc, _ := json.MarshalIndent(t.Configuration, "", "  ")
	fmt.Fprintln(w, color.New(color.FgCyan, color.Bold).Sprint("Configuration:"))
	fmt.Fprintln(w, string(doc))
	if len(t.Suggestions) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.New(color.FgCyan, color.Bold).Sprint("Suggestions:"))
	for _, s := range t.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}

func statusColor(s cloudysetup.OperationStatus) *color.Color {
	switch s {
	case cloudysetup.StatusSuccess:
		return color.New(color.FgGreen)
	case cloudysetup.StatusFailed, cloudysetup.StatusCancelled:
		return color.New(color.FgRed)
	case cloudysetup.StatusUnknown:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func orUnknown(s cloudysetup.OperationStatus) cloudysetup.OperationStatus {
	if s == "" {
		return cloudysetup.StatusUnknown
	}
	return s
}

// consoleObserver prints dispatch and poll progress to w as it happens.
type consoleObserver struct {
	w io.Writer
}

// Observe implements cloudysetup.Observer.
func (o consoleObserver) Observe(_ context.Context, ev cloudysetup.Event) {
	dim := color.New(color.FgHiBlack)
	switch ev.Kind {
	case cloudysetup.EventDispatched:
		fmt.Fprintf(o.w, "%s %s\n", color.CyanString("dispatched"), ev.Message)
	case cloudysetup.EventAttempt:
		if ev.Err != nil {
			fmt.Fprintf(o.w, "  attempt %d: %s %v\n", ev.Attempt+1, color.YellowString("query failed:"), ev.Err)
			return
		}
		fmt.Fprintf(o.w, "  attempt %d: %s\n", ev.Attempt+1, statusColor(ev.Status).Sprint(ev.Status))
	case cloudysetup.EventWaiting:
		dim.Fprintf(o.w, "  waiting %s\n", ev.Wait.Round(100*time.Millisecond))
	case cloudysetup.EventFinished:
		fmt.Fprintf(o.w, "%s %s (%s)\n", color.CyanString("finished"), statusColor(ev.Status).Sprint(ev.Status), ev.Message)
	}
}

// outcomeExit maps a poll outcome onto the process exit code.
func outcomeExit(o *cloudysetup.PollOutcome) error {
	if o == nil {
		return nil
	}
	switch {
	case o.Status == cloudysetup.StatusSuccess:
		return nil
	case o.Status == cloudysetup.StatusFailed || o.Status == cloudysetup.StatusCancelled:
		return &exitCodeError{code: exitFailed}
	default:
		return &exitCodeError{code: exitInconclusive}
	}
}

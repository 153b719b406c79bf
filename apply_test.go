package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

const bucketTemplate = `{"TypeName":"AWS::S3::Bucket","Properties":{"BucketName":"logs"},"Operation":"create"}`

// failingControlPlane reports every queried request as FAILED.
type failingControlPlane struct {
	*cloudysetup.SimulatedControlPlane
}

func (f failingControlPlane) QueryStatus(
	ctx context.Context, token cloudysetup.RequestToken, creds cloudysetup.Credentials,
) (*cloudysetup.ProgressEvent, error) {
	ev, err := f.SimulatedControlPlane.QueryStatus(ctx, token, creds)
	if err != nil {
		return nil, err
	}
	ev.OperationStatus = cloudysetup.StatusFailed
	ev.ErrorCode = "InvalidRequest"
	ev.StatusMessage = "bucket name already taken"
	return ev, nil
}

func TestApply_TemplateSucceeds(t *testing.T) {
	sim := cloudysetup.NewSimulatedControlPlane()
	res := runCLI(t, sim, nil, "apply", "--template", writeTemplate(t, bucketTemplate))
	if res.code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", res.code, res.stderr)
	}
	for _, want := range []string{"Request token:", "Status: SUCCESS", "Identifier: logs"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
	for _, want := range []string{"dispatched", "attempt 1: IN_PROGRESS", "finished SUCCESS"} {
		if !strings.Contains(res.stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, res.stderr)
		}
	}
	if _, err := sim.Read(context.Background(), "AWS::S3::Bucket", "logs", cloudysetup.Credentials{}); err != nil {
		t.Errorf("bucket not created: %v", err)
	}
}

func TestApply_FailedRequestExitsThree(t *testing.T) {
	cp := failingControlPlane{cloudysetup.NewSimulatedControlPlane()}
	res := runCLI(t, cp, nil, "apply", "--template", writeTemplate(t, bucketTemplate))
	if res.code != exitFailed {
		t.Fatalf("exit = %d, want %d; stderr: %s", res.code, exitFailed, res.stderr)
	}
	if !strings.Contains(res.stdout, "Error code: InvalidRequest") {
		t.Errorf("stdout missing error code:\n%s", res.stdout)
	}
}

func TestApply_ExhaustedPollExitsTwo(t *testing.T) {
	sim := cloudysetup.NewSimulatedControlPlane()
	sim.StepsToComplete = 100
	res := runCLI(t, sim, nil, "-o", "json", "apply", "--max-attempts", "2", "--template", writeTemplate(t, bucketTemplate))
	if res.code != exitInconclusive {
		t.Fatalf("exit = %d, want %d; stderr: %s", res.code, exitInconclusive, res.stderr)
	}
	var view dispatchView
	if err := json.Unmarshal([]byte(res.stdout), &view); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	if view.Outcome == nil || !view.Outcome.Exhausted || view.Outcome.Attempts != 2 {
		t.Fatalf("outcome = %+v", view.Outcome)
	}
	if view.Outcome.LastObserved != cloudysetup.StatusInProgress {
		t.Errorf("LastObserved = %q, want IN_PROGRESS", view.Outcome.LastObserved)
	}
	if sim.Calls("QueryStatus") != 2 {
		t.Errorf("status queries = %d, want 2", sim.Calls("QueryStatus"))
	}
}

func TestApply_NoWait(t *testing.T) {
	sim := cloudysetup.NewSimulatedControlPlane()
	res := runCLI(t, sim, nil, "apply", "--wait=false", "--template", writeTemplate(t, bucketTemplate))
	if res.code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Status: PENDING") || !strings.Contains(res.stdout, "cloudysetup status ") {
		t.Errorf("stdout = %s", res.stdout)
	}
	if sim.Calls("QueryStatus") != 0 {
		t.Errorf("status queries = %d, want 0", sim.Calls("QueryStatus"))
	}
}

func TestApply_FromDescription(t *testing.T) {
	model := cloudysetup.ModelFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "List the changes") {
			return `["Turn on versioning"]`, nil
		}
		return `{"TypeName":"AWS::S3::Bucket","Properties":{"BucketName":"media"}}`, nil
	})
	sim := cloudysetup.NewSimulatedControlPlane()
	res := runCLI(t, sim, []cloudysetup.ServiceOption{cloudysetup.WithModel(model)},
		"apply", "create", "a", "bucket", "called", "media")
	if res.code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", res.code, res.stderr)
	}
	if _, err := sim.Read(context.Background(), "AWS::S3::Bucket", "media", cloudysetup.Credentials{}); err != nil {
		t.Errorf("bucket not created: %v", err)
	}
}

func TestApply_InputErrors(t *testing.T) {
	tmpl := writeTemplate(t, bucketTemplate)
	invalid := writeTemplate(t, `{"Properties":{}}`)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "nothing to apply", args: []string{"apply"}, want: "nothing to apply"},
		{name: "template and description", args: []string{"apply", "--template", tmpl, "make", "a", "bucket"}, want: "not both"},
		{name: "missing file", args: []string{"apply", "--template", filepath.Join(t.TempDir(), "none.json")}, want: "read template"},
		{name: "schema violation", args: []string{"apply", "--template", invalid}, want: "TypeName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := cloudysetup.NewSimulatedControlPlane()
			res := runCLI(t, sim, nil, tt.args...)
			if res.code != exitError {
				t.Fatalf("exit = %d, want %d", res.code, exitError)
			}
			if !strings.Contains(res.stderr, tt.want) {
				t.Errorf("stderr = %q, want it to mention %q", res.stderr, tt.want)
			}
			if sim.TotalCalls() != 0 {
				t.Errorf("control plane called %d times", sim.TotalCalls())
			}
		})
	}
}

func TestGetListDelete(t *testing.T) {
	sim := cloudysetup.NewSimulatedControlPlane()
	sim.Seed("AWS::SQS::Queue", "jobs", `{"QueueName":"jobs","DelaySeconds":5}`)
	sim.Seed("AWS::SQS::Queue", "mail", `{"QueueName":"mail"}`)

	res := runCLI(t, sim, nil, "get", "--type", "AWS::SQS::Queue", "--id", "jobs")
	if res.code != exitOK {
		t.Fatalf("get exit = %d, stderr: %s", res.code, res.stderr)
	}
	if !strings.HasPrefix(res.stdout, "AWS::SQS::Queue jobs\n") || !strings.Contains(res.stdout, `"DelaySeconds": 5`) {
		t.Errorf("get stdout = %s", res.stdout)
	}

	res = runCLI(t, sim, nil, "list", "-t", "AWS::SQS::Queue")
	if res.code != exitOK || res.stdout != "jobs\nmail\n" {
		t.Errorf("list = %d %q", res.code, res.stdout)
	}

	res = runCLI(t, sim, nil, "delete", "--type", "AWS::SQS::Queue", "--id", "jobs")
	if res.code != exitOK {
		t.Fatalf("delete exit = %d, stderr: %s", res.code, res.stderr)
	}
	_, err := sim.Read(context.Background(), "AWS::SQS::Queue", "jobs", cloudysetup.Credentials{})
	var cpErr *cloudysetup.ControlPlaneError
	if !errors.As(err, &cpErr) || cpErr.StatusCode != 404 {
		t.Errorf("after delete Read err = %v, want 404", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	res := runCLI(t, cloudysetup.NewSimulatedControlPlane(), nil, "get", "--type", "AWS::SQS::Queue", "--id", "nope")
	if res.code != exitError {
		t.Fatalf("exit = %d, want %d", res.code, exitError)
	}
	if !strings.HasSuffix(res.stderr, "cloudysetup: AWS::SQS::Queue \"nope\" not found\n") {
		t.Errorf("stderr = %q", res.stderr)
	}
}

func TestGet_MissingRequiredFlag(t *testing.T) {
	res := runCLI(t, cloudysetup.NewSimulatedControlPlane(), nil, "get", "--type", "AWS::SQS::Queue")
	if res.code != exitError {
		t.Errorf("exit = %d, want %d", res.code, exitError)
	}
}

func TestGenerate_SavesTemplate(t *testing.T) {
	calls := 0
	model := cloudysetup.ModelFunc(func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			return "```json\n{\"TypeName\":\"AWS::SNS::Topic\",\"Properties\":{\"TopicName\":\"alerts\"}}\n```", nil
		}
		return `["Add a subscription"]`, nil
	})
	path := filepath.Join(t.TempDir(), "topic.json")
	sim := cloudysetup.NewSimulatedControlPlane()
	res := runCLI(t, sim, []cloudysetup.ServiceOption{cloudysetup.WithModel(model)},
		"generate", "--save", path, "an", "sns", "topic")
	if res.code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", res.code, res.stderr)
	}
	for _, want := range []string{"Configuration:", `"TopicName": "alerts"`, "Suggestions:", "- Add a subscription"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
	if !strings.Contains(res.stderr, "saved to "+path) {
		t.Errorf("stderr = %q", res.stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved template: %v", err)
	}
	if !strings.Contains(string(data), "AWS::SNS::Topic") {
		t.Errorf("saved = %s", data)
	}
	if sim.TotalCalls() != 0 {
		t.Errorf("generate called the control plane %d times", sim.TotalCalls())
	}

	// The saved document round-trips through apply.
	res = runCLI(t, sim, nil, "apply", "--template", path)
	if res.code != exitOK {
		t.Fatalf("apply exit = %d, stderr: %s", res.code, res.stderr)
	}
}

func TestGenerate_RequiresDescription(t *testing.T) {
	res := runCLI(t, cloudysetup.NewSimulatedControlPlane(), nil, "generate")
	if res.code != exitError || !strings.Contains(res.stderr, "description is required") {
		t.Errorf("exit = %d, stderr = %q", res.code, res.stderr)
	}
}

func TestGenerate_ModelFailure(t *testing.T) {
	model := cloudysetup.ModelFunc(func(context.Context, string) (string, error) {
		return "I cannot help with that.", nil
	})
	res := runCLI(t, cloudysetup.NewSimulatedControlPlane(),
		[]cloudysetup.ServiceOption{cloudysetup.WithModel(model)}, "generate", "something")
	if res.code != exitError {
		t.Errorf("exit = %d, want %d", res.code, exitError)
	}
}

package cloudysetup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func mustProps(t *testing.T, raw string) Properties {
	t.Helper()
	var p Properties
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal properties: %v", err)
	}
	return p
}

func TestDispatch_ValidationBeforeNetwork(t *testing.T) {
	tests := []struct {
		name  string
		desc  ResourceDescriptor
		field string
	}{
		{"unknown operation", ResourceDescriptor{TypeName: "AWS::S3::Bucket", Operation: "explode"}, "Operation"},
		{"empty operation", ResourceDescriptor{TypeName: "AWS::S3::Bucket"}, "Operation"},
		{"missing type name", ResourceDescriptor{Operation: OpCreate}, "TypeName"},
		{"malformed type name", ResourceDescriptor{TypeName: "S3Bucket", Operation: OpList}, "TypeName"},
		{"delete without identifier", ResourceDescriptor{TypeName: "AWS::S3::Bucket", Operation: OpDelete}, "Identifier"},
		{"read without identifier", ResourceDescriptor{TypeName: "AWS::S3::Bucket", Operation: OpRead}, "Identifier"},
		{"update without identifier", ResourceDescriptor{
			TypeName: "AWS::S3::Bucket", Operation: OpUpdate, Properties: NewProperties("A", "b"),
		}, "Identifier"},
		{"update without properties", ResourceDescriptor{
			TypeName: "AWS::S3::Bucket", Operation: OpUpdate, Identifier: "x",
		}, "Properties"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulatedControlPlane()
			d := NewDispatcher(sim)
			_, err := d.Dispatch(context.Background(), tt.desc, Credentials{})
			ve := AsValidationError(err)
			if ve == nil {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
			if sim.TotalCalls() != 0 {
				t.Errorf("control plane calls = %d, want 0", sim.TotalCalls())
			}
		})
	}
}

func TestDispatch_CreateThenPoll(t *testing.T) {
	sim := NewSimulatedControlPlane()
	d := NewDispatcher(sim)
	desc := ResourceDescriptor{
		TypeName:   "AWS::SNS::Topic",
		Operation:  OpCreate,
		Properties: mustProps(t, `{"TopicName":"alerts","DisplayName":"Alerts"}`),
	}

	p, _, _ := newTestPoller(sim, 10)
	res, outcome, err := d.DispatchAndWait(context.Background(), desc, Credentials{}, p, true)
	if err != nil {
		t.Fatalf("DispatchAndWait: %v", err)
	}
	if res.RequestToken == "" || res.Status != StatusPending {
		t.Errorf("result = %+v, want pending token", res)
	}
	if outcome == nil || outcome.Status != StatusSuccess {
		t.Fatalf("outcome = %+v, want SUCCESS", outcome)
	}
	model, err := sim.Read(context.Background(), "AWS::SNS::Topic", "alerts", Credentials{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if model.Properties != `{"TopicName":"alerts","DisplayName":"Alerts"}` {
		t.Errorf("stored properties = %s", model.Properties)
	}
}

func TestDispatch_NoWaitSkipsPolling(t *testing.T) {
	sim := NewSimulatedControlPlane()
	d := NewDispatcher(sim)
	desc := ResourceDescriptor{TypeName: "AWS::SQS::Queue", Operation: OpCreate, Properties: NewProperties("QueueName", "q1")}
	p, _, _ := newTestPoller(sim, 10)

	_, outcome, err := d.DispatchAndWait(context.Background(), desc, Credentials{}, p, false)
	if err != nil {
		t.Fatalf("DispatchAndWait: %v", err)
	}
	if outcome != nil {
		t.Errorf("outcome = %+v, want nil", outcome)
	}
	if sim.Calls("QueryStatus") != 0 {
		t.Errorf("status queries = %d, want 0", sim.Calls("QueryStatus"))
	}
}

// capturingControlPlane records the arguments of mutating calls.
type capturingControlPlane struct {
	*SimulatedControlPlane
	createdProps Properties
	patch        []byte
}

func (c *capturingControlPlane) SubmitCreate(
	ctx context.Context, typeName string, props Properties, creds Credentials,
) (*ProgressEvent, error) {
	c.createdProps = props
	return c.SimulatedControlPlane.SubmitCreate(ctx, typeName, props, creds)
}

func (c *capturingControlPlane) SubmitUpdate(
	ctx context.Context, typeName, identifier string, patch []byte, creds Credentials,
) (*ProgressEvent, error) {
	c.patch = patch
	return c.SimulatedControlPlane.SubmitUpdate(ctx, typeName, identifier, patch, creds)
}

func TestDispatch_UpdatePatchPreservesOrder(t *testing.T) {
	cp := &capturingControlPlane{SimulatedControlPlane: NewSimulatedControlPlane()}
	cp.Seed("AWS::S3::Bucket", "b1", `{"BucketName":"b1"}`)
	d := NewDispatcher(cp)
	desc := ResourceDescriptor{
		TypeName:   "AWS::S3::Bucket",
		Identifier: "b1",
		Operation:  OpUpdate,
		Properties: mustProps(t, `{"Zeta":1,"Alpha":{"b":2,"a":1},"a/b":"x"}`),
	}

	p, _, _ := newTestPoller(cp, 10)
	_, outcome, err := d.DispatchAndWait(context.Background(), desc, Credentials{}, p, true)
	if err != nil {
		t.Fatalf("DispatchAndWait: %v", err)
	}
	want := `[{"op":"add","path":"/Zeta","value":1},` +
		`{"op":"add","path":"/Alpha","value":{"b":2,"a":1}},` +
		`{"op":"add","path":"/a~1b","value":"x"}]`
	if string(cp.patch) != want {
		t.Errorf("patch = %s\nwant    %s", cp.patch, want)
	}
	if outcome.Status != StatusSuccess {
		t.Fatalf("outcome = %+v", outcome)
	}
	model, _ := cp.Read(context.Background(), "AWS::S3::Bucket", "b1", Credentials{})
	if !strings.Contains(model.Properties, `"Zeta":1`) || !strings.Contains(model.Properties, `"BucketName":"b1"`) {
		t.Errorf("patched properties = %s", model.Properties)
	}
}

func TestDispatch_DeleteAndRead(t *testing.T) {
	sim := NewSimulatedControlPlane()
	sim.Seed("AWS::S3::Bucket", "b1", `{"BucketName":"b1"}`)
	d := NewDispatcher(sim)

	res, err := d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::S3::Bucket", Identifier: "b1", Operation: OpRead}, Credentials{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Resource == nil || res.Resource.Identifier != "b1" || res.Status != StatusSuccess || res.RequestToken != "" {
		t.Errorf("read result = %+v", res)
	}

	res, err = d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::S3::Bucket", Identifier: "b1", Operation: OpDelete}, Credentials{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.RequestToken == "" {
		t.Fatal("delete returned no token")
	}
}

func TestDispatch_SubmissionFailureIsControlPlaneError(t *testing.T) {
	sim := NewSimulatedControlPlane()
	d := NewDispatcher(sim)
	_, err := d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::S3::Bucket", Identifier: "missing", Operation: OpDelete}, Credentials{})
	cpe := AsControlPlaneError(err)
	if cpe == nil {
		t.Fatalf("err = %v, want ControlPlaneError", err)
	}
	if cpe.StatusCode != 404 || cpe.Code != "ResourceNotFoundException" {
		t.Errorf("error = %+v", cpe)
	}
}

func TestDispatch_ListFollowsPages(t *testing.T) {
	sim := NewSimulatedControlPlane()
	for i := range listPageSize + 5 {
		id := string(rune('a'+i/26)) + string(rune('a'+i%26))
		sim.Seed("AWS::SQS::Queue", id, `{}`)
	}
	d := NewDispatcher(sim)
	res, err := d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::SQS::Queue", Operation: OpList}, Credentials{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Resources) != listPageSize+5 {
		t.Errorf("resources = %d, want %d", len(res.Resources), listPageSize+5)
	}
	if sim.Calls("List") != 2 {
		t.Errorf("list calls = %d, want 2", sim.Calls("List"))
	}
	if res.Truncated {
		t.Error("unexpected truncation")
	}

	d.MaxListPages = 1
	res, err = d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::SQS::Queue", Operation: OpList}, Credentials{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !res.Truncated || len(res.Resources) != listPageSize {
		t.Errorf("truncated=%v resources=%d, want truncated first page", res.Truncated, len(res.Resources))
	}
}

func TestDispatch_AppliesDefaultTags(t *testing.T) {
	cp := &capturingControlPlane{SimulatedControlPlane: NewSimulatedControlPlane()}
	d := NewDispatcher(cp)
	d.ApplyTags = true
	d.Tags = map[string]string{"team": "platform"}
	desc := ResourceDescriptor{
		TypeName:   "AWS::S3::Bucket",
		Operation:  OpCreate,
		Properties: mustProps(t, `{"BucketName":"b2","Tags":[{"Key":"team","Value":"data"}]}`),
	}
	if _, err := d.Dispatch(context.Background(), desc, Credentials{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got, err := json.Marshal(cp.createdProps)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"BucketName":"b2","Tags":[{"Key":"team","Value":"data"},{"Key":"cloudysetup:managed-by","Value":"cloudysetup"}]}`
	if string(got) != want {
		t.Errorf("properties = %s\nwant         %s", got, want)
	}
	// The caller's descriptor is untouched.
	tags, _ := desc.Properties.Get("Tags")
	if items, _ := tags.Items(); len(items) != 1 {
		t.Errorf("caller tags mutated: %d items", len(items))
	}
}

func TestDispatch_EmitsDispatchedEvent(t *testing.T) {
	sim := NewSimulatedControlPlane()
	obs := &RecordingObserver{}
	d := NewDispatcher(sim)
	d.Observer = obs
	_, err := d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::SNS::Topic", Operation: OpCreate, Properties: NewProperties("TopicName", "t")},
		Credentials{})
	if err != nil {
		t.Fatal(err)
	}
	if obs.Count(EventDispatched) != 1 {
		t.Errorf("dispatched events = %d, want 1", obs.Count(EventDispatched))
	}
}

func TestDispatch_NilClient(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Dispatch(context.Background(),
		ResourceDescriptor{TypeName: "AWS::SNS::Topic", Operation: OpList}, Credentials{})
	if err == nil || errors.As(err, new(*ValidationError)) {
		t.Errorf("err = %v, want plain configuration error", err)
	}
}

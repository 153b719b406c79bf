package cloudysetup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedModel replies with the scripted texts in order.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (m *scriptedModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i >= len(m.replies) {
		return "", errors.New("no scripted reply")
	}
	return m.replies[i], nil
}

func TestGenerate_CreateWithSuggestions(t *testing.T) {
	m := &scriptedModel{replies: []string{
		"Here you go:\n```json\n{\"TypeName\":\"AWS::S3::Bucket\",\"Properties\":{\"BucketName\":\"<YOUR-BUCKET-NAME>\"}}\n```",
		`["Replace <YOUR-BUCKET-NAME> with a globally unique name"]`,
	}}
	g := NewGenerator(m)

	tmpl, err := g.Generate(context.Background(), "create an s3 bucket")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cfg := tmpl.Configuration
	if cfg.TypeName != "AWS::S3::Bucket" || cfg.Operation != OpCreate {
		t.Errorf("configuration = %+v", cfg)
	}
	if v, _ := cfg.Properties.Get("BucketName"); v.Kind() != KindString {
		t.Errorf("BucketName = %v", v)
	}
	if len(tmpl.Suggestions) != 1 || !strings.Contains(tmpl.Suggestions[0], "BUCKET-NAME") {
		t.Errorf("suggestions = %v", tmpl.Suggestions)
	}
	if len(m.prompts) != 2 {
		t.Fatalf("model calls = %d, want 2", len(m.prompts))
	}
	if !strings.Contains(m.prompts[0], "create an s3 bucket") {
		t.Errorf("template prompt missing action text")
	}
	if !strings.Contains(m.prompts[1], `"TypeName":"AWS::S3::Bucket"`) {
		t.Errorf("suggestions prompt missing document: %s", m.prompts[1])
	}
}

func TestGenerate_BracketedProseBeforePayload(t *testing.T) {
	m := &scriptedModel{replies: []string{
		`Use {placeholders} here: {"TypeName":"AWS::SNS::Topic","Properties":{}}`,
		`Replace [your topic] with a name. ["Set TopicName"]`,
	}}
	tmpl, err := NewGenerator(m).Generate(context.Background(), "an sns topic")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tmpl.Configuration.TypeName != "AWS::SNS::Topic" {
		t.Errorf("TypeName = %q", tmpl.Configuration.TypeName)
	}
	if len(tmpl.Suggestions) != 1 || tmpl.Suggestions[0] != "Set TopicName" {
		t.Errorf("suggestions = %v", tmpl.Suggestions)
	}
}

func TestGenerate_NormalisesOperation(t *testing.T) {
	m := &scriptedModel{replies: []string{
		`{"TypeName":"AWS::SQS::Queue","Identifier":"q1","Operation":" DELETE "}`,
		`[]`,
	}}
	tmpl, err := NewGenerator(m).Generate(context.Background(), "delete queue q1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tmpl.Configuration.Operation != OpDelete {
		t.Errorf("Operation = %q, want delete", tmpl.Configuration.Operation)
	}
	if tmpl.Suggestions == nil || len(tmpl.Suggestions) != 0 {
		t.Errorf("Suggestions = %#v, want empty non-nil", tmpl.Suggestions)
	}
}

func TestGenerate_EmptyActionMakesNoCall(t *testing.T) {
	m := &scriptedModel{}
	_, err := NewGenerator(m).Generate(context.Background(), "   ")
	if AsValidationError(err) == nil {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(m.prompts) != 0 {
		t.Errorf("model calls = %d, want 0", len(m.prompts))
	}
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		replies []string
		errs    []error
		stage   string
		calls   int
	}{
		{"model error", nil, []error{errors.New("throttled")}, StageTemplate, 1},
		{"no object", []string{"I cannot help with that."}, nil, StageTemplate, 1},
		{"not a document", []string{`{"TypeName": 5}`}, nil, StageTemplate, 1},
		{"schema violation", []string{`{"TypeName":"S3"}`}, nil, StageValidate, 1},
		{"bad operation", []string{`{"TypeName":"AWS::S3::Bucket","Operation":"explode"}`}, nil, StageValidate, 1},
		{"delete without identifier", []string{`{"TypeName":"AWS::S3::Bucket","Operation":"delete"}`}, nil, StageValidate, 1},
		{"suggestions error", []string{`{"TypeName":"AWS::S3::Bucket"}`}, []error{nil, errors.New("boom")}, StageSuggestions, 2},
		{"suggestions not strings", []string{`{"TypeName":"AWS::S3::Bucket"}`, `[1,2]`}, nil, StageSuggestions, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{replies: tt.replies, errs: tt.errs}
			_, err := NewGenerator(m).Generate(context.Background(), "do something")
			ge := AsGenerationError(err)
			if ge == nil {
				t.Fatalf("err = %v, want GenerationError", err)
			}
			if ge.Stage != tt.stage {
				t.Errorf("Stage = %s, want %s", ge.Stage, tt.stage)
			}
			if len(m.prompts) != tt.calls {
				t.Errorf("model calls = %d, want %d (never retried)", len(m.prompts), tt.calls)
			}
		})
	}
}

func TestGenerate_ModelTimeout(t *testing.T) {
	m := ModelFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g := NewGenerator(m)
	g.Timeout = 10 * time.Millisecond
	_, err := g.Generate(context.Background(), "create a topic")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

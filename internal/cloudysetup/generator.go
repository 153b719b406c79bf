package cloudysetup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultModelTimeout bounds each model call.
const DefaultModelTimeout = 60 * time.Second

// Generation stages reported in GenerationError.Stage.
const (
	StageTemplate    = "template"
	StageSuggestions = "suggestions"
	StageValidate    = "validate"
)

// Template is a generated resource request plus suggested improvements.
type Template struct {
	Configuration ResourceDescriptor `json:"configuration" yaml:"configuration"`
	Suggestions   []string           `json:"suggestions" yaml:"suggestions"`
}

// Generator turns natural-language action text into a Template using a
// generative model. Generation is never retried.
type Generator struct {
	Model ModelClient
	// Timeout bounds each model call; defaults to 60s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewGenerator returns a Generator for model.
func NewGenerator(model ModelClient) *Generator {
	return &Generator{Model: model, Timeout: DefaultModelTimeout}
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Generate asks the model for a resource document describing actionText and
// then for a list of suggested improvements to it.
func (g *Generator) Generate(ctx context.Context, actionText string) (*Template, error) {
	actionText = strings.TrimSpace(actionText)
	if actionText == "" {
		return nil, newValidationError("action", "must not be empty")
	}
	if g.Model == nil {
		return nil, fmt.Errorf("generator has no model client")
	}

	ctx, span := startSpan(ctx, "cloudysetup.Generate", attribute.Int("action_length", len(actionText)))
	tmpl, err := g.generate(ctx, actionText)
	endSpan(span, err)
	if err != nil {
		generationTotal.WithLabelValues("error").Inc()
		g.logger().Error("generation failed", "error", err)
		return nil, err
	}
	generationTotal.WithLabelValues("ok").Inc()
	g.logger().Info("generated template",
		"operation", tmpl.Configuration.Operation, "type_name", tmpl.Configuration.TypeName,
		"suggestions", len(tmpl.Suggestions))
	return tmpl, nil
}

func (g *Generator) generate(ctx context.Context, actionText string) (*Template, error) {
	reply, err := g.complete(ctx, buildTemplatePrompt(actionText))
	if err != nil {
		return nil, &GenerationError{Stage: StageTemplate, Message: "model call failed", Cause: err}
	}
	desc, err := parseDescriptorReply(reply)
	if err != nil {
		return nil, err
	}

	reply, err = g.complete(ctx, buildSuggestionsPrompt(desc))
	if err != nil {
		return nil, &GenerationError{Stage: StageSuggestions, Message: "model call failed", Cause: err}
	}
	suggestions, err := parseSuggestionsReply(reply)
	if err != nil {
		return nil, err
	}
	return &Template{Configuration: desc, Suggestions: suggestions}, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.Model.Complete(callCtx, prompt)
}

// parseDescriptorReply extracts and validates the resource document in a
// model reply. A missing Operation defaults to create.
func parseDescriptorReply(reply string) (ResourceDescriptor, error) {
	span, ok := ExtractObject(reply)
	if !ok {
		return ResourceDescriptor{}, &GenerationError{Stage: StageTemplate, Message: "reply contained no JSON object"}
	}
	var desc ResourceDescriptor
	if err := json.Unmarshal([]byte(span), &desc); err != nil {
		return ResourceDescriptor{}, &GenerationError{Stage: StageTemplate, Message: "reply JSON is not a resource document", Cause: err}
	}
	desc.Operation = Operation(strings.ToLower(strings.TrimSpace(string(desc.Operation))))
	if desc.Operation == "" {
		desc.Operation = OpCreate
	}
	if err := validateDescriptorDocument(desc); err != nil {
		return ResourceDescriptor{}, &GenerationError{Stage: StageValidate, Message: "generated document is invalid", Cause: err}
	}
	if err := ValidateDescriptor(desc); err != nil {
		return ResourceDescriptor{}, &GenerationError{Stage: StageValidate, Message: "generated document is invalid", Cause: err}
	}
	return desc, nil
}

// parseSuggestionsReply extracts the first JSON array of strings in a reply.
func parseSuggestionsReply(reply string) ([]string, error) {
	span, ok := ExtractArray(reply)
	if !ok {
		return nil, &GenerationError{Stage: StageSuggestions, Message: "reply contained no JSON array"}
	}
	suggestions := []string{}
	if err := json.Unmarshal([]byte(span), &suggestions); err != nil {
		return nil, &GenerationError{Stage: StageSuggestions, Message: "reply array is not a list of strings", Cause: err}
	}
	return suggestions, nil
}

func buildTemplatePrompt(actionText string) string {
	var b strings.Builder
	b.WriteString("Translate the following request into a single JSON document for the AWS Cloud Control API.\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", actionText)
	b.WriteString("The document has the fields TypeName, Identifier, Properties and Operation.\n")
	b.WriteString("Operation is one of create, read, update, delete or list. Requirements per operation:\n")
	b.WriteString("- create: TypeName and Properties (the desired state, following the resource type schema).\n")
	b.WriteString("- read: TypeName and Identifier.\n")
	b.WriteString("- update: TypeName, Identifier and Properties (only the properties to change).\n")
	b.WriteString("- delete: TypeName and Identifier.\n")
	b.WriteString("- list: TypeName.\n")
	b.WriteString("TypeName looks like AWS::S3::Bucket. When a value is unknown use a placeholder such as <YOUR-BUCKET-NAME>.\n")
	b.WriteString("Reply with the JSON document only.")
	return b.String()
}

func buildSuggestionsPrompt(desc ResourceDescriptor) string {
	doc, _ := json.Marshal(desc)
	var b strings.Builder
	b.WriteString("Here is an AWS Cloud Control API resource document:\n\n")
	b.Write(doc)
	b.WriteString("\n\nList the changes the user should make before submitting it, such as replacing ")
	b.WriteString("placeholders like <YOUR-BUCKET-NAME> with real values. ")
	b.WriteString("Reply with a JSON array of short strings only; reply [] when nothing needs changing.")
	return b.String()
}

package cloudysetup

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockModel implements ModelClient with the Bedrock Converse API.
type BedrockModel struct {
	Region      string
	ModelID     string
	Credentials Credentials
	MaxTokens   int32
}

// Complete sends prompt as a single user turn and concatenates the text
// blocks of the reply.
func (m *BedrockModel) Complete(ctx context.Context, prompt string) (string, error) {
	cfg, err := loadAWSConfig(ctx, m.Region, m.Credentials)
	if err != nil {
		return "", err
	}
	modelID := m.ModelID
	if modelID == "" {
		modelID = DefaultBedrockModelID
	}
	maxTokens := m.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	out, err := bedrockruntime.NewFromConfig(cfg).Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(0.2),
		},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock converse (%s): %w", modelID, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock converse (%s): reply carried no message", modelID)
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("bedrock converse (%s): reply carried no text", modelID)
	}
	return b.String(), nil
}

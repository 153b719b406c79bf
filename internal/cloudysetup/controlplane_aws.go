package cloudysetup

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol/types"
	"github.com/google/uuid"
)

// listPageSize is the MaxResults value used when listing resources.
const listPageSize = 100

// AWSControlPlane implements ControlPlane using the AWS Cloud Control API.
// A new SDK client is built for every call from the caller's credentials;
// nothing is cached between calls.
type AWSControlPlane struct {
	Region string
}

// NewAWSControlPlane returns an AWSControlPlane for region (us-east-1 when empty).
func NewAWSControlPlane(region string) *AWSControlPlane {
	if region == "" {
		region = DefaultRegion
	}
	return &AWSControlPlane{Region: region}
}

func (c *AWSControlPlane) client(ctx context.Context, creds Credentials) (*cloudcontrol.Client, error) {
	cfg, err := loadAWSConfig(ctx, c.Region, creds)
	if err != nil {
		return nil, err
	}
	return cloudcontrol.NewFromConfig(cfg), nil
}

// SubmitCreate calls CreateResource with properties as the desired state.
func (c *AWSControlPlane) SubmitCreate(
	ctx context.Context, typeName string, properties Properties, creds Credentials,
) (*ProgressEvent, error) {
	desired, err := properties.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode desired state: %w", err)
	}
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	out, err := cc.CreateResource(ctx, &cloudcontrol.CreateResourceInput{
		TypeName:     aws.String(typeName),
		DesiredState: aws.String(string(desired)),
		ClientToken:  aws.String(uuid.NewString()),
	})
	if err != nil {
		return nil, err
	}
	return fromProgressEvent(out.ProgressEvent), nil
}

// SubmitDelete calls DeleteResource.
func (c *AWSControlPlane) SubmitDelete(
	ctx context.Context, typeName, identifier string, creds Credentials,
) (*ProgressEvent, error) {
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	out, err := cc.DeleteResource(ctx, &cloudcontrol.DeleteResourceInput{
		TypeName:    aws.String(typeName),
		Identifier:  aws.String(identifier),
		ClientToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return nil, err
	}
	return fromProgressEvent(out.ProgressEvent), nil
}

// SubmitUpdate calls UpdateResource with an RFC 6902 patch document.
func (c *AWSControlPlane) SubmitUpdate(
	ctx context.Context, typeName, identifier string, patch []byte, creds Credentials,
) (*ProgressEvent, error) {
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	out, err := cc.UpdateResource(ctx, &cloudcontrol.UpdateResourceInput{
		TypeName:      aws.String(typeName),
		Identifier:    aws.String(identifier),
		PatchDocument: aws.String(string(patch)),
		ClientToken:   aws.String(uuid.NewString()),
	})
	if err != nil {
		return nil, err
	}
	return fromProgressEvent(out.ProgressEvent), nil
}

// QueryStatus calls GetResourceRequestStatus.
func (c *AWSControlPlane) QueryStatus(
	ctx context.Context, token RequestToken, creds Credentials,
) (*ProgressEvent, error) {
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	out, err := cc.GetResourceRequestStatus(ctx, &cloudcontrol.GetResourceRequestStatusInput{
		RequestToken: aws.String(string(token)),
	})
	if err != nil {
		return nil, err
	}
	return fromProgressEvent(out.ProgressEvent), nil
}

// Cancel calls CancelResourceRequest.
func (c *AWSControlPlane) Cancel(
	ctx context.Context, token RequestToken, creds Credentials,
) (*ProgressEvent, error) {
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	out, err := cc.CancelResourceRequest(ctx, &cloudcontrol.CancelResourceRequestInput{
		RequestToken: aws.String(string(token)),
	})
	if err != nil {
		return nil, err
	}
	return fromProgressEvent(out.ProgressEvent), nil
}

// Read calls GetResource.
func (c *AWSControlPlane) Read(
	ctx context.Context, typeName, identifier string, creds Credentials,
) (*ResourceModel, error) {
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	out, err := cc.GetResource(ctx, &cloudcontrol.GetResourceInput{
		TypeName:   aws.String(typeName),
		Identifier: aws.String(identifier),
	})
	if err != nil {
		return nil, err
	}
	model := fromResourceDescription(out.ResourceDescription)
	model.TypeName = aws.ToString(out.TypeName)
	if model.TypeName == "" {
		model.TypeName = typeName
	}
	return &model, nil
}

// List calls ListResources for one page.
func (c *AWSControlPlane) List(
	ctx context.Context, typeName, nextToken string, creds Credentials,
) (*ResourcePage, error) {
	cc, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	in := &cloudcontrol.ListResourcesInput{
		TypeName:   aws.String(typeName),
		MaxResults: aws.Int32(listPageSize),
	}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}
	out, err := cc.ListResources(ctx, in)
	if err != nil {
		return nil, err
	}
	page := &ResourcePage{
		TypeName:  typeName,
		Resources: make([]ResourceModel, 0, len(out.ResourceDescriptions)),
		NextToken: aws.ToString(out.NextToken),
	}
	for _, rd := range out.ResourceDescriptions {
		model := fromResourceDescription(&rd)
		model.TypeName = typeName
		page.Resources = append(page.Resources, model)
	}
	return page, nil
}

// fromProgressEvent converts the SDK progress event.
func fromProgressEvent(ev *types.ProgressEvent) *ProgressEvent {
	if ev == nil {
		return nil
	}
	return &ProgressEvent{
		RequestToken:    RequestToken(aws.ToString(ev.RequestToken)),
		OperationStatus: ParseOperationStatus(string(ev.OperationStatus)),
		Operation:       string(ev.Operation),
		Identifier:      aws.ToString(ev.Identifier),
		TypeName:        aws.ToString(ev.TypeName),
		StatusMessage:   aws.ToString(ev.StatusMessage),
		ErrorCode:       string(ev.ErrorCode),
		ResourceModel:   aws.ToString(ev.ResourceModel),
		EventTime:       ev.EventTime,
		RetryAfter:      ev.RetryAfter,
	}
}

func fromResourceDescription(rd *types.ResourceDescription) ResourceModel {
	if rd == nil {
		return ResourceModel{}
	}
	return ResourceModel{
		Identifier: aws.ToString(rd.Identifier),
		Properties: aws.ToString(rd.Properties),
	}
}

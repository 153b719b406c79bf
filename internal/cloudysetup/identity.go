package cloudysetup

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CallerIdentity is the AWS principal behind a set of credentials.
type CallerIdentity struct {
	Account string `json:"account" yaml:"account"`
	ARN     string `json:"arn" yaml:"arn"`
	UserID  string `json:"userId" yaml:"userId"`
	Region  string `json:"region" yaml:"region"`
}

// IdentityResolver looks up the caller behind credentials.
type IdentityResolver interface {
	Identity(ctx context.Context, creds Credentials, region string) (*CallerIdentity, error)
}

// STSIdentity implements IdentityResolver with STS GetCallerIdentity.
type STSIdentity struct{}

// Identity calls GetCallerIdentity with a client built for this call.
func (STSIdentity) Identity(ctx context.Context, creds Credentials, region string) (*CallerIdentity, error) {
	cfg, err := loadAWSConfig(ctx, region, creds)
	if err != nil {
		return nil, err
	}
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, newControlPlaneError("GetCallerIdentity", err)
	}
	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
		Region:  cfg.Region,
	}, nil
}

// simulatedIdentity reports a fixed placeholder identity for dry runs.
type simulatedIdentity struct{}

func (simulatedIdentity) Identity(_ context.Context, _ Credentials, region string) (*CallerIdentity, error) {
	if region == "" {
		region = DefaultRegion
	}
	return &CallerIdentity{
		Account: "123456789012",
		ARN:     "arn:aws:iam::123456789012:user/dry-run",
		UserID:  "AIDASIMULATED",
		Region:  region,
	}, nil
}

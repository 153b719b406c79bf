package cloudysetup

import "testing"

func TestValidateTypeName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"AWS::S3::Bucket", false},
		{"AWS::EC2::VPCEndpoint", false},
		{"MyOrg::Svc::Thing2", false},
		{"", true},
		{"AWS::S3", true},
		{"AWS::S3::Bucket::Extra", true},
		{"AWS::S-3::Bucket", true},
		{"A::S3::Bucket", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTypeName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTypeName(%q) = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDescriptor_Valid(t *testing.T) {
	valid := []ResourceDescriptor{
		{TypeName: "AWS::S3::Bucket", Operation: OpCreate},
		{TypeName: "AWS::S3::Bucket", Operation: OpCreate, Properties: NewProperties("BucketName", "b")},
		{TypeName: "AWS::S3::Bucket", Operation: OpList},
		{TypeName: "AWS::S3::Bucket", Operation: OpRead, Identifier: "b"},
		{TypeName: "AWS::S3::Bucket", Operation: OpDelete, Identifier: "b"},
		{TypeName: "AWS::S3::Bucket", Operation: OpUpdate, Identifier: "b", Properties: NewProperties("X", 1)},
	}
	for _, d := range valid {
		if err := ValidateDescriptor(d); err != nil {
			t.Errorf("ValidateDescriptor(%+v) = %v", d, err)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := describe("AWS::S3::Bucket", ""); got != "AWS::S3::Bucket" {
		t.Errorf("describe = %s", got)
	}
	if got := describe("AWS::S3::Bucket", "b"); got != "AWS::S3::Bucket/b" {
		t.Errorf("describe = %s", got)
	}
}

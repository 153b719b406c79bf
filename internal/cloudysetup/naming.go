package cloudysetup

import (
	"fmt"
	"regexp"
)

// typeNamePattern matches Cloud Control resource type names such as
// "AWS::S3::Bucket". Third-party registry types use the same three-part shape.
const typeNamePattern = `^[A-Za-z0-9]{2,64}::[A-Za-z0-9]{2,64}::[A-Za-z0-9]{2,64}$`

// typeNameRe is the compiled regex for validating resource type names.
var typeNameRe = regexp.MustCompile(typeNamePattern)

// ValidateTypeName checks whether typeName is a well-formed resource type name.
func ValidateTypeName(typeName string) error {
	if typeName == "" {
		return newValidationError("TypeName", "is required")
	}
	if !typeNameRe.MatchString(typeName) {
		return newValidationError("TypeName",
			"%q is invalid: must look like Organization::Service::Resource", typeName)
	}
	return nil
}

// ValidateDescriptor checks desc against the requirements of its operation
// without contacting the control plane.
func ValidateDescriptor(desc ResourceDescriptor) error {
	if !desc.Operation.IsValid() {
		return newValidationError("Operation",
			"unsupported operation %q (supported: %v)", desc.Operation, SupportedOperations())
	}
	if err := ValidateTypeName(desc.TypeName); err != nil {
		return err
	}
	switch desc.Operation {
	case OpRead, OpDelete:
		if desc.Identifier == "" {
			return newValidationError("Identifier", "is required for %s", desc.Operation)
		}
	case OpUpdate:
		if desc.Identifier == "" {
			return newValidationError("Identifier", "is required for %s", desc.Operation)
		}
		if desc.Properties.Len() == 0 {
			return newValidationError("Properties", "at least one property is required for %s", desc.Operation)
		}
	}
	return nil
}

// describe renders a short label for logs, e.g. "AWS::S3::Bucket/my-bucket".
func describe(typeName, identifier string) string {
	if identifier == "" {
		return typeName
	}
	return fmt.Sprintf("%s/%s", typeName, identifier)
}

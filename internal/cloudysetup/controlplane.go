package cloudysetup

import "context"

// StatusQuerier answers status queries for request tokens. It is the only
// part of the control plane the Poller needs.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, token RequestToken, creds Credentials) (*ProgressEvent, error)
}

// ControlPlane abstracts the resource control API for testing. Mutating
// calls return a ProgressEvent carrying the request token to poll.
type ControlPlane interface {
	StatusQuerier
	SubmitCreate(ctx context.Context, typeName string, properties Properties, creds Credentials) (*ProgressEvent, error)
	SubmitDelete(ctx context.Context, typeName, identifier string, creds Credentials) (*ProgressEvent, error)
	SubmitUpdate(ctx context.Context, typeName, identifier string, patch []byte, creds Credentials) (*ProgressEvent, error)
	Read(ctx context.Context, typeName, identifier string, creds Credentials) (*ResourceModel, error)
	List(ctx context.Context, typeName, nextToken string, creds Credentials) (*ResourcePage, error)
	Cancel(ctx context.Context, token RequestToken, creds Credentials) (*ProgressEvent, error)
}

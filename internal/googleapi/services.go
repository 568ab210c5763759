package googleapi

import (
	"context"
	"fmt"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"

	"github.com/steipete/gdocs-mcp/internal/googleauth"
)

func NewDocs(ctx context.Context, email string) (*docs.Service, error) {
	opts, err := optionsForAccount(ctx, googleauth.ServiceDocs, email)
	if err != nil {
		return nil, fmt.Errorf("docs options: %w", err)
	}

	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create docs service: %w", err)
	}

	return svc, nil
}

func NewDrive(ctx context.Context, email string) (*drive.Service, error) {
	opts, err := optionsForAccount(ctx, googleauth.ServiceDrive, email)
	if err != nil {
		return nil, fmt.Errorf("drive options: %w", err)
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return svc, nil
}

package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Clients bundles the Firebase services the API uses. Both are nil when no
// service account is configured.
type Clients struct {
	Auth      *auth.Client
	Messaging *messaging.Client
}

// Init initializes the Firebase Admin SDK from a service account file.
// An empty path yields empty Clients so the API can run without Firebase.
func Init(ctx context.Context, serviceAccountPath string) (*Clients, error) {
	if serviceAccountPath == "" {
		return &Clients{}, nil
	}

	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
	}

	return &Clients{Auth: authClient, Messaging: msgClient}, nil
}

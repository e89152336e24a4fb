package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushNotification is one rendered push payload. Badge, when set, is the
// recipient's fresh unread count and rides through to the iOS APNS payload.
type PushNotification struct {
	Title string
	Body  string
	Badge *int
	Data  map[string]string
}

// SendResult is the per-token outcome of a multicast send. Permanent marks
// tokens the gateway reported as dead (unregistered, malformed); callers
// prune those from storage.
type SendResult struct {
	Token     string
	OK        bool
	Permanent bool
	Err       error
}

// PushSender abstracts the FCM multicast call.
type PushSender interface {
	Send(ctx context.Context, tokens []string, n PushNotification) ([]SendResult, error)
}

// FCMClient wraps the Firebase Cloud Messaging client.
//
// The credentials (project ID, client email, private key) come from Firebase
// Console: Project Settings -> Service Accounts -> Generate New Private Key.
type FCMClient struct {
	client *messaging.Client
}

// NewFCMClient creates a new FCM client from environment credentials.
// The private key in .env has literal "\n" strings, so we replace them with
// actual newlines before handing the PEM to the SDK.
func NewFCMClient(ctx context.Context, projectID, clientEmail, privateKey string) (*FCMClient, error) {
	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")

	// Equivalent to the JSON file downloaded from Firebase Console
	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)

	opt := option.WithCredentialsJSON([]byte(credsJSON))
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log.Printf("[FCM] Initialized for project: %s", projectID)
	return &FCMClient{client: client}, nil
}

// Send delivers one notification to the given tokens in a single multicast
// call (FCM handles the fan-out, up to 500 tokens per request) and maps the
// batch response back to per-token results.
func (c *FCMClient) Send(ctx context.Context, tokens []string, n PushNotification) ([]SendResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high", // Ensures delivery even in battery-saving mode
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: n.Badge,
				},
			},
		},
	}
	if n.Data != nil {
		message.Data = n.Data
	}

	response, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("send multicast: %w", err)
	}

	log.Printf("[FCM] Sent to %d tokens: %d success, %d failure",
		len(tokens), response.SuccessCount, response.FailureCount)

	results := make([]SendResult, len(tokens))
	for i, resp := range response.Responses {
		results[i] = SendResult{
			Token: tokens[i],
			OK:    resp.Success,
			Err:   resp.Error,
		}
		if !resp.Success {
			// Unregistered and malformed tokens never recover; flag them
			// for pruning. Transient errors (quota, unavailable) are not.
			results[i].Permanent = messaging.IsRegistrationTokenNotRegistered(resp.Error) ||
				messaging.IsInvalidArgument(resp.Error)
			log.Printf("[FCM] Token %d failed: permanent=%v err=%v", i, results[i].Permanent, resp.Error)
		}
	}

	return results, nil
}

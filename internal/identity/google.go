package identity

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var ErrFederatedSignIn = errors.New("federated sign-in failed")

// TokenVerifier turns a provider ID token into a profile.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (Profile, error)
}

// payloadValidator is the part of *idtoken.Validator we use.
type payloadValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier checks Google ID tokens issued for clientID.
type GoogleVerifier struct {
	clientID  string
	validator payloadValidator
}

func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create id token validator: %w", err)
	}
	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (Profile, error) {
	if idToken == "" {
		return Profile{}, fmt.Errorf("%w: missing id token", ErrFederatedSignIn)
	}
	payload, err := g.validator.Validate(ctx, idToken, g.clientID)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrFederatedSignIn, err)
	}
	return profileFromClaims(payload.Claims)
}

func profileFromClaims(claims map[string]interface{}) (Profile, error) {
	email, _ := claims["email"].(string)
	if email == "" {
		return Profile{}, fmt.Errorf("%w: token has no email", ErrFederatedSignIn)
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return Profile{}, fmt.Errorf("%w: email not verified", ErrFederatedSignIn)
	}
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	return Profile{Email: email, Name: name, Image: picture}, nil
}

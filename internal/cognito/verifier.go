package cognito

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"

	"github.com/jaekwang-park/todo-sync/internal/middleware"
)

// GetUserAPI is the part of the Cognito client the verifier needs.
type GetUserAPI interface {
	GetUser(ctx context.Context, params *cip.GetUserInput, optFns ...func(*cip.Options)) (*cip.GetUserOutput, error)
}

// Verifier checks access tokens remotely with Cognito GetUser. Revoked
// tokens are rejected, which local JWT validation cannot detect.
type Verifier struct {
	api GetUserAPI
}

// NewVerifier loads the default AWS configuration for region.
func NewVerifier(ctx context.Context, region string) (*Verifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewVerifierWithAPI(cip.NewFromConfig(cfg)), nil
}

func NewVerifierWithAPI(api GetUserAPI) *Verifier {
	return &Verifier{api: api}
}

// Verify returns the sub attribute of the token's user.
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	out, err := v.api.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(token)})
	if err != nil {
		return "", mapAWSError(err)
	}

	for _, attr := range out.UserAttributes {
		if aws.ToString(attr.Name) == "sub" {
			if sub := aws.ToString(attr.Value); sub != "" {
				return sub, nil
			}
		}
	}
	return "", fmt.Errorf("%w: sub attribute not found", middleware.ErrUnauthenticated)
}

// Compile-time check: Verifier implements middleware.TokenVerifier.
var _ middleware.TokenVerifier = (*Verifier)(nil)

package authflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mprlab/classboard/internal/classroom"
	"golang.org/x/oauth2"
)

// CodeExchanger swaps an authorization code for a credential set.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// AccessProber verifies the account can reach Classroom at all.
type AccessProber interface {
	ProbeAccess(ctx context.Context, accessToken string) error
}

// IdentityFetcher retrieves the caller's identity from the provider.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, accessToken string) (classroom.UserProfile, error)
}

// TokenRevoker invalidates a credential upstream on logout.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

type oauthExchanger struct {
	oauthConfig *oauth2.Config
}

func (exchanger oauthExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchanger.oauthConfig.Exchange(ctx, code)
}

type classroomProber struct{}

func (classroomProber) ProbeAccess(ctx context.Context, accessToken string) error {
	client, err := classroom.NewClient(ctx, accessToken)
	if err != nil {
		return err
	}
	return client.ProbeAccess(ctx)
}

type userinfoFetcher struct{}

func (userinfoFetcher) FetchIdentity(ctx context.Context, accessToken string) (classroom.UserProfile, error) {
	client, err := classroom.NewClient(ctx, accessToken)
	if err != nil {
		return classroom.UserProfile{}, err
	}
	return client.UserInfo(ctx)
}

const googleRevokeEndpoint = "https://oauth2.googleapis.com/revoke"

type googleRevoker struct {
	httpClient *http.Client
	endpoint   string
}

func (revoker googleRevoker) Revoke(ctx context.Context, token string) error {
	endpoint := revoker.endpoint
	if endpoint == "" {
		endpoint = googleRevokeEndpoint
	}
	form := url.Values{"token": {token}}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if requestErr != nil {
		return fmt.Errorf("authflow.revoke.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := revoker.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	response, doErr := httpClient.Do(request)
	if doErr != nil {
		return fmt.Errorf("authflow.revoke.transport: %w", doErr)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("authflow.revoke.status: %d", response.StatusCode)
	}
	return nil
}

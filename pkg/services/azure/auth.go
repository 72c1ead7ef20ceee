package azure

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

const ManagementScope = "https://management.azure.com/.default"

var guidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidateGUID reports whether s is a GUID in the 8-4-4-4-12 hex form used for
// Azure client and tenant ids.
func ValidateGUID(s string) bool {
	return guidRegex.MatchString(s)
}

// CredentialFactory builds the token credential used to authenticate the service principal.
type CredentialFactory func(creds domain.Credentials) (azcore.TokenCredential, error)

func ClientSecretCredentialFactory(creds domain.Credentials) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}

// ListerFactory builds a subscription lister once a credential is available.
type ListerFactory func(cred azcore.TokenCredential) (SubscriptionLister, error)

type Authenticator struct {
	creds      domain.Credentials
	newCred    CredentialFactory
	newLister  ListerFactory
	credential azcore.TokenCredential
}

type Option func(*Authenticator)

// WithSubscriptionLister makes Authenticate fill in a missing subscription id
// with the first enabled subscription of the principal.
func WithSubscriptionLister(f ListerFactory) Option {
	return func(a *Authenticator) {
		a.newLister = f
	}
}

func WithCredentialFactory(f CredentialFactory) Option {
	return func(a *Authenticator) {
		a.newCred = f
	}
}

func NewAuthenticator(creds domain.Credentials, opts ...Option) (*Authenticator, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	a := &Authenticator{
		creds:   creds,
		newCred: ClientSecretCredentialFactory,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate acquires a management-plane token for the service principal.
// It returns false when the credential cannot be built or the token request fails.
func (a *Authenticator) Authenticate(ctx context.Context) bool {
	logger := zerolog.Ctx(ctx)

	for name, id := range map[string]string{"client_id": a.creds.ClientID, "tenant_id": a.creds.TenantID} {
		if !ValidateGUID(id) {
			logger.Warn().Str("field", name).Msg("value is not a GUID, Azure AD will most likely reject it")
		}
	}

	cred, err := a.newCred(a.creds)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to build service principal credential")
		return false
	}

	_, err = cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{ManagementScope}})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to authenticate service principal")
		return false
	}

	a.credential = cred
	logger.Info().Str("tenant_id", a.creds.TenantID).Msg("authenticated with Azure")

	if a.creds.SubscriptionID == "" && a.newLister != nil {
		a.resolveSubscription(ctx)
	}
	return true
}

func (a *Authenticator) resolveSubscription(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	lister, err := a.newLister(a.credential)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create subscription client")
		return
	}
	sub, err := ResolveSubscription(ctx, lister)
	if err != nil {
		logger.Warn().Err(err).Msg("no subscription resolved, terraform must be told which one to use")
		return
	}
	a.SetSubscription(sub.ID)
	logger.Info().Str("subscription_id", sub.ID).Str("subscription", sub.Name).Msg("using subscription")
}

// Credential returns the credential obtained by a successful Authenticate call.
func (a *Authenticator) Credential() azcore.TokenCredential {
	return a.credential
}

func (a *Authenticator) Credentials() domain.Credentials {
	return a.creds
}

// SetSubscription records the subscription the terraform providers should target.
func (a *Authenticator) SetSubscription(id string) {
	a.creds.SubscriptionID = id
}

// Environ returns the ARM_* variables read by the azurerm and azuread providers.
func (a *Authenticator) Environ() []string {
	env := []string{
		"ARM_CLIENT_ID=" + a.creds.ClientID,
		"ARM_CLIENT_SECRET=" + a.creds.ClientSecret,
		"ARM_TENANT_ID=" + a.creds.TenantID,
	}
	if a.creds.SubscriptionID != "" {
		env = append(env, "ARM_SUBSCRIPTION_ID="+a.creds.SubscriptionID)
	}
	return env
}

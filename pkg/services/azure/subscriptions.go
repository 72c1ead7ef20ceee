package azure

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
)

var ErrNoSubscription = errors.New("no enabled subscription found")

type Subscription struct {
	ID      string
	Name    string
	Enabled bool
}

type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
}

type armSubscriptionLister struct {
	client *armsubscriptions.Client
}

func NewSubscriptionLister(cred azcore.TokenCredential) (SubscriptionLister, error) {
	client, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}
	return &armSubscriptionLister{client: client}, nil
}

func (l *armSubscriptionLister) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription

	pager := l.client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		for _, s := range page.Value {
			if s == nil || s.SubscriptionID == nil {
				continue
			}
			sub := Subscription{ID: *s.SubscriptionID}
			if s.DisplayName != nil {
				sub.Name = *s.DisplayName
			}
			if s.State != nil {
				sub.Enabled = *s.State == armsubscriptions.SubscriptionStateEnabled
			}
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// ResolveSubscription picks the first enabled subscription visible to the principal.
func ResolveSubscription(ctx context.Context, lister SubscriptionLister) (Subscription, error) {
	subs, err := lister.ListSubscriptions(ctx)
	if err != nil {
		return Subscription{}, err
	}
	for _, s := range subs {
		if s.Enabled {
			return s, nil
		}
	}
	return Subscription{}, ErrNoSubscription
}

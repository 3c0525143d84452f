package port

import (
	"context"

	"github.com/plumekit/geoperm/internal/domain/entity"
)

// Prompter defines the interface for the host UI that asks the user about a
// geolocation permission request. Both calls are fire-and-forget: the answer
// comes back later through Negotiator.ProvideDecision, marshalled from
// whatever thread the UI runs on.
type Prompter interface {
	// ShowPrompt asks the host UI to display a permission prompt for origin.
	ShowPrompt(ctx context.Context, origin entity.Origin)

	// HidePrompt dismisses any visible prompt for this tab.
	HidePrompt(ctx context.Context)
}

package core

import "context"

// Adapter is the uniform capability every provider backend exposes to the
// gateway. Implementations own their transport and wire format; the gateway
// only ever sees normalized requests and responses. Implementations must be
// safe for concurrent use.
type Adapter interface {
	// CreateCompletion executes one chat/vision/translation request.
	// Failures should come back already classified (an *APIError) so the
	// manager's retry policy can branch without re-parsing transport
	// details.
	CreateCompletion(ctx context.Context, params *ResolvedParams) (*Response, error)

	// ListModels returns the raw model identifiers the backend currently
	// offers. Translation-only providers return their single virtual
	// identifier.
	ListModels(ctx context.Context) ([]string, error)
}

// SettingsSource is the configuration contract the gateway consumes:
// credentials, timeouts, preferred provider, temperature overrides and
// model-exclude lists all arrive through GetSetting.
type SettingsSource interface {
	// GetSetting returns the raw configured value for a key, or nil when
	// the key is unset.
	GetSetting(key string) any
}

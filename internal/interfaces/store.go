package interfaces

import "context"

// CredentialStore is the external store of Access Point records. The
// automation core consumes it as a key-value source of device credentials
// and a sink for scraped status fields; it imposes no transaction discipline
// beyond what the store provides.
type CredentialStore interface {
	// Get returns the stored record for an AP as a flat field map, or nil
	// when the AP is unknown.
	Get(ctx context.Context, apID string) (map[string]string, error)

	// Update writes a partial field update for an AP. Only the supplied
	// fields change.
	Update(ctx context.Context, apID string, fields map[string]string) error

	// List returns all known AP IDs.
	List(ctx context.Context) ([]string, error)
}

package credential

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// fileRecord is the on-disk JSON shape of a dynamic credential file,
// matching the "JSON config at a conventional path" source in
// spec.md §6.
type fileRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
	ClientID     string `json:"clientID,omitempty"`
}

// LoadFile reads a dynamic OAuth key from path. A missing file is not
// an error — it simply means this credential source is unavailable.
func LoadFile(path string) (*OAuthKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("credential: reading %s: %w", path, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("credential: parsing %s: %w", path, err)
	}
	return &OAuthKey{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
		ClientID:     rec.ClientID,
	}, nil
}

// SaveFile atomically replaces path's contents with key, via
// temp-file-and-rename, then chmod 0600 — spec.md §5/§6's persistence
// atomicity invariant. Grounded on the pack's google/renameio/v2
// dependency, the idiomatic Go primitive for exactly this pattern.
func SaveFile(path string, key OAuthKey) error {
	rec := fileRecord{
		AccessToken:  key.AccessToken,
		RefreshToken: key.RefreshToken,
		ExpiresAt:    key.ExpiresAt,
		ClientID:     key.ClientID,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("credential: marshaling key: %w", err)
	}
	return renameio.WriteFile(path, data, 0o600)
}

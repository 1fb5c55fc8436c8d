package models

// Settings holds the registry's administrative switches. Both default to
// off so a fresh registry mints freely.
type Settings struct {
	Paused        bool `json:"paused"`
	WhitelistOnly bool `json:"whitelist_only"`
}

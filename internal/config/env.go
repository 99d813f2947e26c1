package config

import (
	"strconv"
	"strings"
)

// Getenv matches os.Getenv.
type Getenv func(key string) string

// ApplyEnv overlays secrets and server settings from the environment.
// Empty variables leave the file value untouched.
func (c *Config) ApplyEnv(getenv Getenv) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Ledger.ServerURL, "ACTUAL_SERVER")
	set(&c.Ledger.SyncID, "ACTUAL_SYNC_ID")
	set(&c.Ledger.DataDir, "ACTUAL_DATA")
	set(&c.Ledger.Password, "ACTUAL_PASSWORD")
	set(&c.Ledger.EncryptionPassword, "ACTUAL_ENCRYPTION_PASSWORD")
	set(&c.Up.UserToken, "UP_USER_TOKEN")
	set(&c.Akahu.AppToken, "AKAHU_APP_TOKEN")
	set(&c.Akahu.UserToken, "AKAHU_USER_TOKEN")
	set(&c.Bnz.AccessNumber, "BNZ_ACCESS_NUMBER")
	set(&c.Bnz.Password, "BNZ_PASSWORD")
	if v := getenv("BNZ_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Bnz.Headless = b
		}
	}
}

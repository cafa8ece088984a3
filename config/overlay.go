package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// Keys the overlay may never supply. The datasource coordinates are always
// derived from the live database host so the service cannot drift onto a
// stale address, and the password only ever travels as a secret reference.
var reservedOverlayKeys = []string{
	"SPRING_DATASOURCE_URL",
	"SPRING_DATASOURCE_USERNAME",
	"SPRING_DATASOURCE_PASSWORD",
}

// LoadOverlay reads the optional dotenv overlay whose pairs become extra
// container environment variables. A missing file is not an error; reserved
// datasource keys are rejected rather than dropped so a misconfigured
// overlay fails loudly instead of being partially honored.
func LoadOverlay(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: read overlay %s: %w", path, err)
	}
	for _, key := range reservedOverlayKeys {
		if _, ok := vars[key]; ok {
			return nil, fmt.Errorf("config: overlay %s: %s is derived from the database host and cannot be overridden", path, key)
		}
	}
	return vars, nil
}

// OverlayKeys returns the overlay's keys in stable order, for deterministic
// container definitions.
func OverlayKeys(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

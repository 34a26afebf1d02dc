package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadGolden decodes a JSON fixture into v. Tests keep seed collections and
// expected layouts under testdata and load them through this helper.
func LoadGolden(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("testsupport: read fixture %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("testsupport: decode fixture %s: %w", path, err)
	}
	return nil
}

package history

import (
	"encoding/json"
	"fmt"

	"github.com/orbit-saas/settings-backend/internal/models"
)

func unmarshalHistoryBlocks(out *models.ConfigBlocks, dashboard, navigation, branding, stats, department []byte) error {
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{dashboard, &out.Dashboard},
		{navigation, &out.Navigation},
		{branding, &out.Branding},
		{stats, &out.Stats},
		{department, &out.Department},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return fmt.Errorf("decode snapshot block: %w", err)
		}
	}
	return nil
}

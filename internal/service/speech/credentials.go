package speech

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/codementor/backend/internal/config"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg config.VolcengineConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)

	if appID == "" || token == "" {
		return "", "", fmt.Errorf("%w: volcengine speech requires AppID and AccessToken", config.ErrMissingCredential)
	}
	return appID, token, nil
}

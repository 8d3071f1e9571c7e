package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"telegram": map[string]interface{}{
			"bot_token":    "",
			"mini_app_url": "https://din98317.github.io/new_tasks_tg/",
		},
		"jsonbin": map[string]interface{}{
			"bin_id":     "",
			"master_key": "",
			"timeout":    15,
		},
		"scheduler": map[string]interface{}{
			"enabled":    true,
			"interval":   60, // check tasks every minute
			"thresholds": []string{"5h", "1h", "30m", "15m"},
		},
		"family": map[string]interface{}{
			"allow_transfer": false,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.family-tasks/config.yaml"
}

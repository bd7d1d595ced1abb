package bridge

import "strings"

const (
	defaultTransferLimitConstant = 5
	defaultGerritRemoteConstant  = "gerrit"
	defaultTargetRemoteConstant  = "target"
	defaultBranchesFileConstant  = "branches.json"
)

// CommandConfiguration captures configuration values for the sync command.
type CommandConfiguration struct {
	GerritAPIURL    string   `mapstructure:"gerrit_api_url"`
	GerritEventsURL string   `mapstructure:"gerrit_events_url"`
	GerritUsername  string   `mapstructure:"gerrit_username"`
	TransferLimit   int      `mapstructure:"limit"`
	RepositoryPath  string   `mapstructure:"repository"`
	GerritRemote    string   `mapstructure:"gerrit_remote"`
	TargetRemote    string   `mapstructure:"target_remote"`
	Workflows       []string `mapstructure:"workflows"`
	BranchesFile    string   `mapstructure:"branches_file"`
	PushNoVerify    bool     `mapstructure:"push_no_verify"`
}

// DefaultCommandConfiguration provides baseline configuration values for synchronization.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		TransferLimit: defaultTransferLimitConstant,
		GerritRemote:  defaultGerritRemoteConstant,
		TargetRemote:  defaultTargetRemoteConstant,
		BranchesFile:  defaultBranchesFileConstant,
		PushNoVerify:  true,
	}
}

// DefaultConfigurationValues exposes sync defaults keyed for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		configurationKeyPrefix + ".limit":          defaults.TransferLimit,
		configurationKeyPrefix + ".gerrit_remote":  defaults.GerritRemote,
		configurationKeyPrefix + ".target_remote":  defaults.TargetRemote,
		configurationKeyPrefix + ".branches_file":  defaults.BranchesFile,
		configurationKeyPrefix + ".push_no_verify": defaults.PushNoVerify,
	}
}

// sanitize trims configuration values and restores defaults for cleared fields.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration

	sanitized.GerritAPIURL = strings.TrimSpace(configuration.GerritAPIURL)
	sanitized.GerritEventsURL = strings.TrimSpace(configuration.GerritEventsURL)
	sanitized.GerritUsername = strings.TrimSpace(configuration.GerritUsername)
	sanitized.RepositoryPath = strings.TrimSpace(configuration.RepositoryPath)
	sanitized.GerritRemote = strings.TrimSpace(configuration.GerritRemote)
	sanitized.TargetRemote = strings.TrimSpace(configuration.TargetRemote)
	sanitized.BranchesFile = strings.TrimSpace(configuration.BranchesFile)
	sanitized.Workflows = sanitizeWorkflows(configuration.Workflows)

	if len(sanitized.GerritRemote) == 0 {
		sanitized.GerritRemote = defaultGerritRemoteConstant
	}
	if len(sanitized.TargetRemote) == 0 {
		sanitized.TargetRemote = defaultTargetRemoteConstant
	}
	if len(sanitized.BranchesFile) == 0 {
		sanitized.BranchesFile = defaultBranchesFileConstant
	}
	if sanitized.TransferLimit == 0 {
		sanitized.TransferLimit = defaultTransferLimitConstant
	}

	return sanitized
}

func sanitizeWorkflows(raw []string) []string {
	sanitized := make([]string, 0, len(raw))
	for _, candidate := range raw {
		trimmed := strings.TrimSpace(candidate)
		if len(trimmed) == 0 {
			continue
		}
		sanitized = append(sanitized, trimmed)
	}
	return sanitized
}

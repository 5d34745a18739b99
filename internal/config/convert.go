package config

import (
	"fmt"
	"time"

	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/policy"
	"github.com/projectns/projectns/internal/projects"
)

// ModuleConfig returns the reloadable part of the configuration.
func (c *Config) ModuleConfig(build string) (module.Config, error) {
	chanPolicy, err := namespace.ParsePolicy(c.Projects.ChannelCompare, namespace.PolicyRFC1459)
	if err != nil {
		return module.Config{}, fmt.Errorf("projects.channel_compare: %w", err)
	}
	cloakPolicy, err := namespace.ParsePolicy(c.Projects.CloakCompare, namespace.PolicyExact)
	if err != nil {
		return module.Config{}, fmt.Errorf("projects.cloak_compare: %w", err)
	}

	return module.Config{
		ServiceName: c.Projects.ServiceName,
		Build:       build,
		Registry: projects.Options{
			Separators:              c.Projects.NamespaceSeparators,
			ChannelPolicy:           chanPolicy,
			CloakPolicy:             cloakPolicy,
			DefaultOpenRegistration: c.Projects.DefaultOpenRegistration,
			NameLength:              c.Projects.NameLength,
			ChannelLength:           c.Projects.ChannelLength,
			CloakLength:             c.Projects.CloakLength,
		},
		Policy: policy.Config{
			RequireNamespace:       c.Projects.RegisterRequireNamespace,
			RequireNamespaceExempt: c.Projects.RegisterRequireNamespaceExempt,
			ProjectAdvice:          c.Projects.RegisterProjectAdvice,
		},
	}, nil
}

// ShipperConfigs converts the audit section for audit.NewMultiShipper.
func (a *AuditConfig) ShipperConfigs() []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(a.Shippers))
	for _, s := range a.Shippers {
		sc := audit.ShipperConfig{Enabled: s.Enabled, Type: s.Type}
		if s.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:           s.Webhook.URL,
				Headers:       s.Webhook.Headers,
				Timeout:       time.Duration(s.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     s.Webhook.BatchSize,
				FlushInterval: time.Duration(s.Webhook.FlushInterval) * time.Second,
			}
		}
		if s.File != nil {
			sc.File = &audit.FileConfig{
				Path:       s.File.Path,
				MaxSizeMB:  s.File.MaxSizeMB,
				MaxBackups: s.File.MaxBackups,
			}
		}
		out = append(out, sc)
	}
	return out
}

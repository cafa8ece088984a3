// Package config loads the per-environment deployment configuration that
// drives stack construction. One top-level YAML key per environment name;
// each environment is validated before any resource is declared.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Network layout modes. PublicOnly places everything in public subnets with
// no NAT gateways; PublicPrivateNAT adds private egress subnets behind a
// single NAT gateway.
const (
	NetworkModePublicOnly    = "public-only"
	NetworkModePublicPrivate = "public-private-nat"
)

// Source holds the CI source repository coordinates. The delivery pipeline
// is only built when the whole group is present.
type Source struct {
	Owner           string `yaml:"owner"`
	Repo            string `yaml:"repo"`
	Branch          string `yaml:"branch"`
	TokenSecretName string `yaml:"tokenSecretName"`
}

func (s Source) empty() bool {
	return s.Owner == "" && s.Repo == "" && s.Branch == "" && s.TokenSecretName == ""
}

func (s Source) complete() bool {
	return s.Owner != "" && s.Repo != "" && s.Branch != "" && s.TokenSecretName != ""
}

// Environment is one named deployment target (for example "dev" or "prod").
type Environment struct {
	// Name is the top-level YAML key, filled in by Load.
	Name string `yaml:"-"`

	ShouldDeploy      bool   `yaml:"shouldDeploy"`
	StackName         string `yaml:"stackName"`
	VPCName           string `yaml:"vpcName"`
	SecurityGroupName string `yaml:"securityGroupName"`
	DatabaseName      string `yaml:"databaseName"`
	ECRRepositoryName string `yaml:"ecrRepositoryName"`
	KeyName           string `yaml:"keyName"`
	Region            string `yaml:"region"`
	ContainerName     string `yaml:"pipelineContainerName"`

	// Network layout. Defaults to public-only when unset.
	NetworkMode          string `yaml:"networkMode"`
	AllowSSHFromAnywhere bool   `yaml:"allowSshFromAnywhere"`

	// When true, the bootstrap runs every uploaded init script in lexical
	// order; when false only the conventional init.sql is executed.
	RunAllInitScripts bool `yaml:"runAllInitScripts"`

	// Optional delivery pipeline. All-or-nothing with PipelineName.
	Source       Source `yaml:"source"`
	PipelineName string `yaml:"pipelineName"`

	// Optional DNS/TLS termination. All-or-nothing.
	DomainName     string `yaml:"domainName"`
	Subdomain      string `yaml:"subdomain"`
	CertificateARN string `yaml:"certificateArn"`

	// Optional pipeline state notifications. Requires the pipeline.
	DiscordWebhookURL string `yaml:"discordWebhookUrl"`
}

// HasPipeline reports whether the delivery pipeline feature is configured.
func (e Environment) HasPipeline() bool {
	return e.Source.complete() && e.PipelineName != ""
}

// HasDNS reports whether the service terminates TLS on a custom domain.
func (e Environment) HasDNS() bool {
	return e.DomainName != "" && e.CertificateARN != ""
}

// HasNotifications reports whether pipeline state changes are pushed to a
// Discord webhook.
func (e Environment) HasNotifications() bool {
	return e.HasPipeline() && e.DiscordWebhookURL != ""
}

// AppDomain returns the fully qualified application domain, or "" when DNS
// is not configured.
func (e Environment) AppDomain() string {
	if !e.HasDNS() {
		return ""
	}
	if e.Subdomain == "" {
		return e.DomainName
	}
	return e.Subdomain + "." + e.DomainName
}

// Validate checks that every field consumed by a declared component is
// present. Optional feature groups must be fully present or fully absent;
// a partially filled group is an error, never a silently skipped feature.
func (e Environment) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"stackName", e.StackName},
		{"vpcName", e.VPCName},
		{"securityGroupName", e.SecurityGroupName},
		{"databaseName", e.DatabaseName},
		{"ecrRepositoryName", e.ECRRepositoryName},
		{"keyName", e.KeyName},
		{"region", e.Region},
		{"pipelineContainerName", e.ContainerName},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("config: environment %q: missing required key %q", e.Name, f.key)
		}
	}

	switch e.NetworkMode {
	case "", NetworkModePublicOnly, NetworkModePublicPrivate:
	default:
		return fmt.Errorf("config: environment %q: unknown networkMode %q", e.Name, e.NetworkMode)
	}

	if !e.Source.empty() && !e.Source.complete() {
		return fmt.Errorf("config: environment %q: source is partially configured; owner, repo, branch and tokenSecretName are all required", e.Name)
	}
	if e.Source.complete() && e.PipelineName == "" {
		return fmt.Errorf("config: environment %q: missing required key %q (required when source is configured)", e.Name, "pipelineName")
	}
	if e.PipelineName != "" && !e.Source.complete() {
		return fmt.Errorf("config: environment %q: pipelineName is set but source is not fully configured", e.Name)
	}

	if (e.DomainName == "") != (e.CertificateARN == "") {
		return fmt.Errorf("config: environment %q: domainName and certificateArn must be set together", e.Name)
	}
	if e.Subdomain != "" && e.DomainName == "" {
		return fmt.Errorf("config: environment %q: subdomain is set but domainName is not", e.Name)
	}

	if e.DiscordWebhookURL != "" && !e.HasPipeline() {
		return fmt.Errorf("config: environment %q: discordWebhookUrl requires a configured pipeline", e.Name)
	}

	return nil
}

// Environments is the full parsed configuration, keyed by environment name.
type Environments map[string]Environment

// Deployable returns the environments whose deploy flag is set, in name
// order so repeated synthesis yields an identical app layout.
func (m Environments) Deployable() []Environment {
	out := make([]Environment, 0, len(m))
	for _, env := range m {
		if env.ShouldDeploy {
			out = append(out, env)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Load reads and validates the configuration file. Environments with the
// deploy flag unset are parsed but not validated: they contribute nothing
// to the resource graph, so their fields are never consumed.
func Load(path string) (Environments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read, for callers that already hold the
// document bytes.
func Parse(data []byte) (Environments, error) {
	var raw map[string]Environment
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("config: no environments defined")
	}

	envs := make(Environments, len(raw))
	for name, env := range raw {
		env.Name = name
		if env.ShouldDeploy {
			if err := env.Validate(); err != nil {
				return nil, err
			}
		}
		envs[name] = env
	}
	return envs, nil
}

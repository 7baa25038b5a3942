package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pactown/pactown/pkg/errdefs"
)

const (
	// DefaultBasePort seeds automatic port assignment for services
	// declared without an explicit port.
	DefaultBasePort = 8000

	// DefaultSandboxRoot is where sandboxes, the service registry file,
	// and the dependency cache live unless overridden.
	DefaultSandboxRoot = "./.pactown-sandboxes"

	// DefaultHealthCheck is the probe path used when a service does not
	// set one. An explicit empty string disables probing.
	DefaultHealthCheck = "/health"

	// DefaultTimeoutSeconds bounds the wait for a service to become
	// healthy after start.
	DefaultTimeoutSeconds = 60

	// DefaultRegistryURL is the artifact registry assumed when the
	// config omits one.
	DefaultRegistryURL = "http://localhost:8800"

	// EnvSandboxRoot overrides sandbox_root when set.
	EnvSandboxRoot = "PACTOWN_SANDBOX_ROOT"
)

// Config is a parsed ecosystem definition.
type Config struct {
	Name        string
	Version     string
	Description string
	BasePort    int
	SandboxRoot string
	Registry    RegistryConfig
	Services    []*ServiceConfig // declaration order
}

// RegistryConfig points at the artifact registry for this ecosystem.
type RegistryConfig struct {
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`
	Namespace string `yaml:"namespace"`
}

// ServiceConfig describes one service of the ecosystem.
type ServiceConfig struct {
	Name        string
	Readme      string
	Port        int
	HealthCheck string // "" disables probing
	Timeout     int    // seconds to wait for health
	AutoRestart bool
	Env         map[string]string
	DependsOn   []*DependencyConfig
}

// DependencyConfig is one depends_on entry. A non-empty Endpoint marks
// the dependency as external: it contributes environment but no
// start-ordering constraint.
type DependencyConfig struct {
	Name     string
	Version  string
	Registry string
	Endpoint string
	EnvVar   string
}

// UnmarshalYAML accepts either the shorthand scalar form "name@version"
// or a mapping with name/version/registry/endpoint/env_var keys.
func (d *DependencyConfig) UnmarshalYAML(value *yaml.Node) error {
	d.Version = "*"
	d.Registry = "local"

	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		name, version, found := strings.Cut(s, "@")
		d.Name = strings.TrimSpace(name)
		if found && strings.TrimSpace(version) != "" {
			d.Version = strings.TrimSpace(version)
		}
		if d.Name == "" {
			return errdefs.Config("empty dependency reference %q", s)
		}
		return nil
	}

	if value.Kind != yaml.MappingNode {
		return errdefs.Config("dependency must be a string or mapping (line %d)", value.Line)
	}
	for i := 0; i < len(value.Content); i += 2 {
		key := value.Content[i].Value
		val := value.Content[i+1]
		switch key {
		case "name":
			if err := val.Decode(&d.Name); err != nil {
				return err
			}
		case "version":
			if err := val.Decode(&d.Version); err != nil {
				return err
			}
		case "registry":
			if err := val.Decode(&d.Registry); err != nil {
				return err
			}
		case "endpoint":
			if err := val.Decode(&d.Endpoint); err != nil {
				return err
			}
		case "env_var":
			if err := val.Decode(&d.EnvVar); err != nil {
				return err
			}
		default:
			return errdefs.Config("unknown dependency key %q (line %d)", key, value.Content[i].Line)
		}
	}
	if d.Name == "" {
		return errdefs.Config("dependency missing name (line %d)", value.Line)
	}
	return nil
}

// rawService is the YAML shape of a service entry. Pointer fields
// distinguish "absent" from explicit zero values during defaulting.
type rawService struct {
	Readme      string              `yaml:"readme"`
	Port        int                 `yaml:"port"`
	HealthCheck *string             `yaml:"health_check"`
	Timeout     int                 `yaml:"timeout"`
	AutoRestart *bool               `yaml:"auto_restart"`
	Env         map[string]string   `yaml:"env"`
	DependsOn   []*DependencyConfig `yaml:"depends_on"`
}

type rawConfig struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description"`
	BasePort    int                    `yaml:"base_port"`
	SandboxRoot string                 `yaml:"sandbox_root"`
	Registry    *RegistryConfig        `yaml:"registry"`
	Services    map[string]*rawService `yaml:"services"`
}

// Load reads and parses an ecosystem config file, applying defaults and
// the PACTOWN_SANDBOX_ROOT override.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Config("read %s: %v", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses config bytes. Unknown keys anywhere in the document are
// rejected.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errdefs.IsConfig(err) {
			return nil, err
		}
		return nil, errdefs.Config("%v", err)
	}

	if raw.Name == "" {
		return nil, errdefs.Config("missing ecosystem name")
	}

	cfg := &Config{
		Name:        raw.Name,
		Version:     raw.Version,
		Description: raw.Description,
		BasePort:    raw.BasePort,
		SandboxRoot: raw.SandboxRoot,
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = DefaultBasePort
	}
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = DefaultSandboxRoot
	}
	if root := os.Getenv(EnvSandboxRoot); root != "" {
		cfg.SandboxRoot = root
	}
	cfg.SandboxRoot = filepath.Clean(cfg.SandboxRoot)

	cfg.Registry = RegistryConfig{URL: DefaultRegistryURL, Namespace: "default"}
	if raw.Registry != nil {
		if raw.Registry.URL != "" {
			cfg.Registry.URL = strings.TrimRight(raw.Registry.URL, "/")
		}
		cfg.Registry.AuthToken = raw.Registry.AuthToken
		if raw.Registry.Namespace != "" {
			cfg.Registry.Namespace = raw.Registry.Namespace
		}
	}

	order, err := serviceOrder(data)
	if err != nil {
		return nil, err
	}
	for i, name := range order {
		rs := raw.Services[name]
		svc := &ServiceConfig{
			Name:        name,
			Readme:      rs.Readme,
			Port:        rs.Port,
			HealthCheck: DefaultHealthCheck,
			Timeout:     rs.Timeout,
			AutoRestart: true,
			Env:         rs.Env,
			DependsOn:   rs.DependsOn,
		}
		if svc.Readme == "" {
			svc.Readme = filepath.Join(name, "README.md")
		}
		if svc.Port == 0 {
			svc.Port = cfg.BasePort + i
		}
		if svc.Port < 0 {
			return nil, errdefs.Config("service %s: negative port %d", name, svc.Port)
		}
		if rs.HealthCheck != nil {
			svc.HealthCheck = *rs.HealthCheck
		}
		if svc.Timeout == 0 {
			svc.Timeout = DefaultTimeoutSeconds
		}
		if svc.Timeout < 0 {
			return nil, errdefs.Config("service %s: negative timeout %d", name, svc.Timeout)
		}
		if rs.AutoRestart != nil {
			svc.AutoRestart = *rs.AutoRestart
		}
		cfg.Services = append(cfg.Services, svc)
	}
	return cfg, nil
}

// serviceOrder recovers the declaration order of the services mapping,
// which a map decode discards. Order determines default port
// assignment.
func serviceOrder(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errdefs.Config("%v", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errdefs.Config("top level must be a mapping")
	}
	for i := 0; i < len(root.Content); i += 2 {
		if root.Content[i].Value != "services" {
			continue
		}
		services := root.Content[i+1]
		if services.Kind != yaml.MappingNode {
			return nil, errdefs.Config("services must be a mapping")
		}
		var order []string
		seen := map[string]bool{}
		for j := 0; j < len(services.Content); j += 2 {
			name := services.Content[j].Value
			if seen[name] {
				return nil, errdefs.Config("duplicate service %q", name)
			}
			seen[name] = true
			order = append(order, name)
		}
		return order, nil
	}
	return nil, nil
}

// Service returns the named service config, or nil.
func (c *Config) Service(name string) *ServiceConfig {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc
		}
	}
	return nil
}

// ServiceNames returns service names in declaration order.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for _, svc := range c.Services {
		names = append(names, svc.Name)
	}
	return names
}

// InternalDeps returns the names of deps that must be running services
// of this ecosystem, sorted for deterministic reporting.
func (c *Config) InternalDeps(svc *ServiceConfig) []string {
	var names []string
	for _, dep := range svc.DependsOn {
		if dep.Endpoint == "" {
			names = append(names, dep.Name)
		}
	}
	sort.Strings(names)
	return names
}

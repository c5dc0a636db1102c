// Package config loads the settings of a migration run from a YAML file and
// DATACOPY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/transfer"
)

// EnvPrefix prefixes the environment variables that override settings.
const EnvPrefix = "DATACOPY"

// Settings is the full configuration of a run.
type Settings struct {
	Source      string `mapstructure:"source" yaml:"source"`
	Destination string `mapstructure:"destination" yaml:"destination"`
	RootDir     string `mapstructure:"rootDir" yaml:"rootDir"`

	StopOnErrors              bool `mapstructure:"stopOnErrors" yaml:"stopOnErrors"`
	DeleteDestination         bool `mapstructure:"deleteDestination" yaml:"deleteDestination"`
	CopyToProduction          bool `mapstructure:"copyToProduction" yaml:"copyToProduction"`
	IncludeAllCustom          bool `mapstructure:"includeAllCustom" yaml:"includeAllCustom"`
	TolerateTransportFailures bool `mapstructure:"tolerateTransportFailures" yaml:"tolerateTransportFailures"`

	UseBulk             bool          `mapstructure:"useBulk" yaml:"useBulk"`
	ChunkSize           int           `mapstructure:"chunkSize" yaml:"chunkSize"`
	DirectChunkSize     int           `mapstructure:"directChunkSize" yaml:"directChunkSize"`
	DirectThreshold     int           `mapstructure:"directThreshold" yaml:"directThreshold"`
	MaxConcurrentChunks int           `mapstructure:"maxConcurrentChunks" yaml:"maxConcurrentChunks"`
	PollInterval        time.Duration `mapstructure:"pollInterval" yaml:"pollInterval"`
	PollTimeout         time.Duration `mapstructure:"pollTimeout" yaml:"pollTimeout"`

	IgnoreFields           []string `mapstructure:"ignoreFields" yaml:"ignoreFields"`
	TwoPassReferenceFields []string `mapstructure:"twoPassReferenceFields" yaml:"twoPassReferenceFields"`
	CustomObjectsToIgnore  []string `mapstructure:"customObjectsToIgnore" yaml:"customObjectsToIgnore"`

	SObjectsData     []DataType     `mapstructure:"sObjectsData" yaml:"sObjectsData"`
	SObjectsMetadata []MetadataType `mapstructure:"sObjectsMetadata" yaml:"sObjectsMetadata"`
	Companions       []Companion    `mapstructure:"companions" yaml:"companions"`

	// Instances maps aliases to connection settings. Aliases are lower-cased on load.
	Instances map[string]Instance `mapstructure:"instances" yaml:"instances"`

	Log         LogSettings `mapstructure:"log" yaml:"log"`
	MetricsAddr string      `mapstructure:"metricsAddr" yaml:"metricsAddr"`
	HistoryPath string      `mapstructure:"historyPath" yaml:"historyPath"`
}

// DataType configures one data type.
type DataType struct {
	Name                   string   `mapstructure:"name" yaml:"name"`
	IgnoreFields           []string `mapstructure:"ignoreFields" yaml:"ignoreFields,omitempty"`
	TwoPassReferenceFields []string `mapstructure:"twoPassReferenceFields" yaml:"twoPassReferenceFields,omitempty"`
	ExternalIDField        string   `mapstructure:"externalIdField" yaml:"externalIdField,omitempty"`
	Where                  string   `mapstructure:"where" yaml:"where,omitempty"`
	OrderBy                string   `mapstructure:"orderBy" yaml:"orderBy,omitempty"`
}

// MetadataType configures one type matched by business key.
type MetadataType struct {
	Name           string   `mapstructure:"name" yaml:"name"`
	MatchBy        []string `mapstructure:"matchBy" yaml:"matchBy"`
	FieldsToExport []string `mapstructure:"fieldsToExport" yaml:"fieldsToExport,omitempty"`
	Where          string   `mapstructure:"where" yaml:"where,omitempty"`
	OrderBy        string   `mapstructure:"orderBy" yaml:"orderBy,omitempty"`
}

// Companion configures a companion record rule.
type Companion struct {
	OwnerType     string `mapstructure:"ownerType" yaml:"ownerType"`
	CompanionType string `mapstructure:"companionType" yaml:"companionType"`
	FlagField     string `mapstructure:"flagField" yaml:"flagField"`
	OwnerField    string `mapstructure:"ownerField" yaml:"ownerField"`
}

// Instance is how to reach one instance.
type Instance struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
	Production bool   `mapstructure:"production" yaml:"production"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays" yaml:"maxAgeDays"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", "")
	v.SetDefault("destination", "")
	v.SetDefault("rootDir", "data")

	v.SetDefault("stopOnErrors", true)
	v.SetDefault("deleteDestination", false)
	v.SetDefault("copyToProduction", false)
	v.SetDefault("includeAllCustom", false)
	v.SetDefault("tolerateTransportFailures", false)

	v.SetDefault("useBulk", true)
	v.SetDefault("chunkSize", 10000)
	v.SetDefault("directChunkSize", 200)
	v.SetDefault("directThreshold", 0)
	v.SetDefault("maxConcurrentChunks", 4)
	v.SetDefault("pollInterval", "1s")
	v.SetDefault("pollTimeout", "100s")

	v.SetDefault("ignoreFields", []string{})
	v.SetDefault("twoPassReferenceFields", []string{})
	v.SetDefault("customObjectsToIgnore", []string{})
	v.SetDefault("sObjectsData", []any{})
	v.SetDefault("sObjectsMetadata", []any{})
	v.SetDefault("companions", []any{})
	v.SetDefault("instances", map[string]any{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 10)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.maxAgeDays", 28)

	v.SetDefault("metricsAddr", "")
	v.SetDefault("historyPath", "")
}

// Load reads settings from the YAML file at path, applies environment overrides
// and defaults, materializes every list and validates the result.
// An empty path loads defaults and environment variables only.
//
// Returns an error wrapping datacopy.ErrConfiguration if the settings are invalid.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variables take precedence over the config file,
	// e.g. DATACOPY_STOPONERRORS, DATACOPY_LOG_LEVEL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", datacopy.ErrConfiguration, err)
	}

	s.materialize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// materialize turns every list into its final form: trimmed, deduplicated, with
// global field lists merged into each data type and the match fields added to the
// exported fields of each metadata type.
func (s *Settings) materialize() {
	s.IgnoreFields = normalize(s.IgnoreFields)
	s.TwoPassReferenceFields = normalize(s.TwoPassReferenceFields)
	s.CustomObjectsToIgnore = normalize(s.CustomObjectsToIgnore)

	for i := range s.SObjectsData {
		d := &s.SObjectsData[i]
		d.Name = strings.TrimSpace(d.Name)
		d.IgnoreFields = normalize(d.IgnoreFields, s.IgnoreFields)
		d.TwoPassReferenceFields = normalize(d.TwoPassReferenceFields, s.TwoPassReferenceFields)
		d.ExternalIDField = strings.TrimSpace(d.ExternalIDField)
	}
	for i := range s.SObjectsMetadata {
		m := &s.SObjectsMetadata[i]
		m.Name = strings.TrimSpace(m.Name)
		m.MatchBy = normalize(m.MatchBy)
		m.FieldsToExport = normalize([]string{datacopy.IDField}, m.MatchBy, m.FieldsToExport)
	}

	if s.HistoryPath == "" {
		s.HistoryPath = filepath.Join(s.RootDir, "history.db")
	}
	if s.Instances == nil {
		s.Instances = make(map[string]Instance)
	}
}

// normalize joins lists, splits comma-separated entries, trims them and drops
// empty and repeated values, keeping first occurrences in order.
func normalize(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, list := range lists {
		for _, entry := range list {
			for _, part := range strings.Split(entry, ",") {
				part = strings.TrimSpace(part)
				if part == "" || seen[part] {
					continue
				}
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings. Every problem found is reported.
func (s *Settings) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{datacopy.ErrConfiguration}, args...)...))
	}

	if s.Source == "" {
		fail("source is required")
	}
	if s.Destination == "" {
		fail("destination is required")
	}
	if s.RootDir == "" {
		fail("rootDir is required")
	}
	if s.ChunkSize <= 0 {
		fail("chunkSize must be positive")
	}
	if s.DirectChunkSize <= 0 {
		fail("directChunkSize must be positive")
	}
	if s.DirectThreshold < 0 {
		fail("directThreshold must not be negative")
	}
	if s.MaxConcurrentChunks <= 0 {
		fail("maxConcurrentChunks must be positive")
	}
	if s.PollInterval <= 0 || s.PollTimeout <= 0 {
		fail("pollInterval and pollTimeout must be positive")
	}

	names := make(map[string]bool)
	for i, d := range s.SObjectsData {
		if d.Name == "" {
			fail("sObjectsData[%d] has no name", i)
			continue
		}
		if names[d.Name] {
			fail("type %s is configured twice", d.Name)
		}
		names[d.Name] = true
	}
	for i, m := range s.SObjectsMetadata {
		if m.Name == "" {
			fail("sObjectsMetadata[%d] has no name", i)
			continue
		}
		if names[m.Name] {
			fail("type %s is configured twice", m.Name)
		}
		names[m.Name] = true
		if len(m.MatchBy) == 0 {
			fail("metadata type %s has no matchBy fields", m.Name)
		}
	}
	for i, c := range s.Companions {
		if c.OwnerType == "" || c.CompanionType == "" || c.FlagField == "" || c.OwnerField == "" {
			fail("companions[%d] needs ownerType, companionType, flagField and ownerField", i)
		}
	}

	return errors.Join(errs...)
}

// Instance returns the connection settings of an alias.
func (s *Settings) Instance(alias string) (Instance, bool) {
	inst, ok := s.Instances[strings.ToLower(alias)]
	return inst, ok
}

// DataRequests returns the discovery requests of the data types.
func (s *Settings) DataRequests() []schema.DataRequest {
	out := make([]schema.DataRequest, len(s.SObjectsData))
	for i, d := range s.SObjectsData {
		out[i] = schema.DataRequest{
			Name:            d.Name,
			IgnoreFields:    d.IgnoreFields,
			TwoPassFields:   d.TwoPassReferenceFields,
			ExternalIDField: d.ExternalIDField,
			Where:           d.Where,
			OrderBy:         d.OrderBy,
		}
	}
	return out
}

// MetadataRequests returns the discovery requests of the metadata types.
func (s *Settings) MetadataRequests() []schema.MetadataRequest {
	out := make([]schema.MetadataRequest, len(s.SObjectsMetadata))
	for i, m := range s.SObjectsMetadata {
		out[i] = schema.MetadataRequest{
			Name:    m.Name,
			MatchBy: m.MatchBy,
			Fields:  m.FieldsToExport,
			Where:   m.Where,
			OrderBy: m.OrderBy,
		}
	}
	return out
}

// TransferConfig returns the channel settings. Instance, Collector and Logger are left unset.
func (s *Settings) TransferConfig() transfer.Config {
	mode := transfer.ModeBulk
	if !s.UseBulk {
		mode = transfer.ModeDirect
	}
	return transfer.Config{
		Mode:                mode,
		ChunkSize:           s.ChunkSize,
		DirectChunkSize:     s.DirectChunkSize,
		DirectThreshold:     s.DirectThreshold,
		MaxConcurrentChunks: s.MaxConcurrentChunks,
		PollInterval:        s.PollInterval,
		PollTimeout:         s.PollTimeout,
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Sample returns starter settings copying an account hierarchy between two sqlite files.
func Sample() Settings {
	return Settings{
		Source:              "dev",
		Destination:         "qa",
		RootDir:             "data",
		StopOnErrors:        true,
		UseBulk:             true,
		ChunkSize:           10000,
		DirectChunkSize:     200,
		MaxConcurrentChunks: 4,
		PollInterval:        time.Second,
		PollTimeout:         100 * time.Second,
		IgnoreFields:        []string{"OwnerId"},
		SObjectsData: []DataType{
			{Name: "Account", TwoPassReferenceFields: []string{"ParentId"}},
			{Name: "Contact", ExternalIDField: "Email", OrderBy: "LastName"},
			{Name: "Case", Where: "Status != 'Closed'"},
		},
		SObjectsMetadata: []MetadataType{
			{Name: "Region", MatchBy: []string{"Name", "Zone"}},
		},
		Instances: map[string]Instance{
			"dev": {Driver: "sqlite3", DSN: "file:dev.db?_foreign_keys=on"},
			"qa":  {Driver: "sqlite3", DSN: "file:qa.db?_foreign_keys=on"},
		},
		Log: LogSettings{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

var sampleComments = map[string]string{
	"source":                    "Alias of the instance records are copied from.",
	"destination":               "Alias of the instance records are copied to.",
	"rootDir":                   "Folder holding one sub-folder of JSON exports per instance.",
	"stopOnErrors":              "Fail the run when any record is rejected.",
	"deleteDestination":         "Delete the destination records, children first, before importing.",
	"copyToProduction":          "Allow a destination flagged as production. Requires stopOnErrors.",
	"includeAllCustom":          "Copy every custom type, except customObjectsToIgnore.",
	"tolerateTransportFailures": "Count lost chunks as rejected records instead of stopping.",
	"useBulk":                   "Send rows as asynchronous jobs. When false every write is synchronous.",
	"directThreshold":           "Write row sets of at most this many rows synchronously.",
	"ignoreFields":              "Fields never copied, added to every data type.",
	"twoPassReferenceFields":    "References written after every type is loaded, added to every data type.",
	"sObjectsData":              "Data types to copy. Order does not matter: it is computed from references.",
	"sObjectsMetadata":          "Types present on both instances, matched by the matchBy fields instead of copied.",
	"companions":                "Records the destination creates by itself along with an owner record.",
	"instances":                 "Connection settings by alias. Drivers: postgres, mysql, sqlite3.",
	"metricsAddr":               "Serve Prometheus metrics on this address, e.g. :9090.",
	"historyPath":               "Run history database. Defaults to <rootDir>/history.db.",
}

// WriteSample writes commented starter settings to path. An existing file is not overwritten.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	var doc yaml.Node
	if err := doc.Encode(Sample()); err != nil {
		return fmt.Errorf("failed to encode sample settings: %w", err)
	}
	doc.HeadComment = "datacopy settings. Every key can be overridden with a DATACOPY_* environment variable."

	// mapping nodes hold keys and values in alternating order
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if c, ok := sampleComments[doc.Content[i].Value]; ok {
			doc.Content[i].HeadComment = c
		}
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode sample settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create folder: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

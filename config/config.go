// Package config loads the archive configuration.
//
// Settings come from a YAML file, then from DICOMARCHIVE_* environment
// variables (a .env file in the working directory is loaded first), and
// unset fields fall back to defaults. Per-AE sections override the archive
// defaults field by field.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomarchive/attrfilter"
	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/filestore"
	"github.com/caio-sobreiro/dicomarchive/model"
	"github.com/caio-sobreiro/dicomarchive/store"
)

// DuplicatePolicy decides what happens when an instance is received again.
type DuplicatePolicy string

const (
	// StoreDuplicate keeps the new file as an additional copy.
	StoreDuplicate DuplicatePolicy = "STORE"
	// IgnoreDuplicate drops the new object and reports success.
	IgnoreDuplicate DuplicatePolicy = "IGNORE"
	// RejectDuplicate fails the store.
	RejectDuplicate DuplicatePolicy = "REJECT"
	// StoreDuplicateIfDifferent stores only when the digest differs from the
	// newest stored copy.
	StoreDuplicateIfDifferent DuplicatePolicy = "STORE_IF_DIFFERENT"
)

// ParseDuplicatePolicy parses a policy name case-insensitively.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	p := DuplicatePolicy(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case StoreDuplicate, IgnoreDuplicate, RejectDuplicate, StoreDuplicateIfDifferent:
		return p, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// Settings is the YAML form of the per-AE behaviour. Zero values inherit.
type Settings struct {
	StoreDuplicate      string   `yaml:"store_duplicate"`
	Digest              string   `yaml:"digest"`
	PathFormat          string   `yaml:"path_format"`
	MatchUnknown        *bool    `yaml:"match_unknown"`
	FuzzyMatching       *bool    `yaml:"fuzzy_matching"`
	FuzzyFields         []string `yaml:"fuzzy_fields"`
	CaseInsensitivePN   *bool    `yaml:"case_insensitive_pn"`
	RetrieveAETs        []string `yaml:"retrieve_aets"`
	ExternalRetrieveAET string   `yaml:"external_retrieve_aet"`
	Availability        string   `yaml:"availability"`
	AttributeFilters    string   `yaml:"attribute_filters"`
}

func (s Settings) overlay(o Settings) Settings {
	if o.StoreDuplicate != "" {
		s.StoreDuplicate = o.StoreDuplicate
	}
	if o.Digest != "" {
		s.Digest = o.Digest
	}
	if o.PathFormat != "" {
		s.PathFormat = o.PathFormat
	}
	if o.MatchUnknown != nil {
		s.MatchUnknown = o.MatchUnknown
	}
	if o.FuzzyMatching != nil {
		s.FuzzyMatching = o.FuzzyMatching
	}
	if o.FuzzyFields != nil {
		s.FuzzyFields = o.FuzzyFields
	}
	if o.CaseInsensitivePN != nil {
		s.CaseInsensitivePN = o.CaseInsensitivePN
	}
	if o.RetrieveAETs != nil {
		s.RetrieveAETs = o.RetrieveAETs
	}
	if o.ExternalRetrieveAET != "" {
		s.ExternalRetrieveAET = o.ExternalRetrieveAET
	}
	if o.Availability != "" {
		s.Availability = o.Availability
	}
	if o.AttributeFilters != "" {
		s.AttributeFilters = o.AttributeFilters
	}
	return s
}

// File is the YAML document.
type File struct {
	AETitle  string               `yaml:"ae_title"`
	Database store.Config         `yaml:"database"`
	Storage  filestore.FileSystem `yaml:"storage"`
	Defaults Settings             `yaml:"defaults"`
	AEs      map[string]Settings  `yaml:"aes"`
}

// AE is the resolved behaviour for one called AE title.
type AE struct {
	Title               string
	StoreDuplicate      DuplicatePolicy
	Digest              filestore.DigestAlgorithm
	PathFormat          *filestore.PathFormat
	MatchUnknown        bool
	FuzzyMatching       bool
	FuzzyFields         []dicom.Tag
	CaseInsensitivePN   bool
	RetrieveAETs        model.Set
	ExternalRetrieveAET *string
	Availability        model.Availability
	Filters             *attrfilter.Set
}

// Fuzzy reports whether fuzzy matching applies to the person name tag.
func (ae *AE) Fuzzy(tag dicom.Tag) bool {
	if !ae.FuzzyMatching {
		return false
	}
	for _, t := range ae.FuzzyFields {
		if t == tag {
			return true
		}
	}
	return false
}

// Archive is the loaded configuration.
type Archive struct {
	AETitle  string
	Database store.Config
	Storage  filestore.FileSystem

	defaults *AE
	aes      map[string]*AE
}

// AE returns the settings for calledAET, or the archive defaults when the
// title has no section of its own.
func (a *Archive) AE(calledAET string) *AE {
	if ae, ok := a.aes[strings.TrimSpace(calledAET)]; ok {
		return ae
	}
	return a.defaults
}

// Defaults returns the archive-wide settings.
func (a *Archive) Defaults() *AE {
	return a.defaults
}

const envPrefix = "DICOMARCHIVE_"

// Load reads path, applies the environment and resolves every AE. An empty
// path configures the archive from the environment alone.
func Load(path string) (*Archive, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var f File
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&f); err != nil {
		return nil, err
	}
	return Resolve(f)
}

// Parse resolves a configuration document without consulting the
// environment.
func Parse(data []byte) (*Archive, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Resolve(f)
}

// Resolve validates f and builds the per-AE settings.
func Resolve(f File) (*Archive, error) {
	f = applyDefaults(f)
	a := &Archive{
		AETitle:  f.AETitle,
		Database: f.Database,
		Storage:  f.Storage,
		aes:      make(map[string]*AE, len(f.AEs)),
	}
	var err error
	if a.defaults, err = resolveAE(f.AETitle, f.Defaults); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	for title, s := range f.AEs {
		ae, err := resolveAE(title, f.Defaults.overlay(s))
		if err != nil {
			return nil, fmt.Errorf("ae %s: %w", title, err)
		}
		a.aes[title] = ae
	}
	return a, nil
}

func applyDefaults(f File) File {
	if strings.TrimSpace(f.AETitle) == "" {
		f.AETitle = "DICOMARCHIVE"
	}
	if strings.TrimSpace(f.Database.Path) == "" {
		f.Database.Path = "archive.db"
	}
	f.Database.ApplyDefaults()
	if strings.TrimSpace(f.Storage.Root) == "" {
		f.Storage.Root = "archive"
	}
	if f.Storage.GroupID == "" {
		f.Storage.GroupID = "DEFAULT"
	}
	if f.Storage.ID == "" {
		f.Storage.ID = "fs1"
	}
	if f.Defaults.StoreDuplicate == "" {
		f.Defaults.StoreDuplicate = string(StoreDuplicate)
	}
	if f.Defaults.PathFormat == "" {
		f.Defaults.PathFormat = filestore.DefaultPathFormat
	}
	if f.Defaults.FuzzyFields == nil {
		f.Defaults.FuzzyFields = []string{"PatientName", "ReferringPhysicianName", "PerformingPhysicianName"}
	}
	if f.Defaults.Availability == "" {
		f.Defaults.Availability = model.Online.String()
	}
	return f
}

func resolveAE(title string, s Settings) (*AE, error) {
	ae := &AE{
		Title:             title,
		MatchUnknown:      deref(s.MatchUnknown),
		FuzzyMatching:     deref(s.FuzzyMatching),
		CaseInsensitivePN: deref(s.CaseInsensitivePN),
	}
	var err error
	if ae.StoreDuplicate, err = ParseDuplicatePolicy(s.StoreDuplicate); err != nil {
		return nil, err
	}
	if ae.Digest, err = filestore.ParseDigestAlgorithm(s.Digest); err != nil {
		return nil, err
	}
	if ae.PathFormat, err = filestore.ParsePathFormat(s.PathFormat); err != nil {
		return nil, err
	}
	if ae.Availability, err = model.ParseAvailability(s.Availability); err != nil {
		return nil, err
	}
	for _, kw := range s.FuzzyFields {
		tag, err := dicom.ParseTag(kw)
		if err != nil {
			return nil, fmt.Errorf("fuzzy field: %w", err)
		}
		ae.FuzzyFields = append(ae.FuzzyFields, tag)
	}
	ae.RetrieveAETs = model.NewSet(s.RetrieveAETs...)
	if len(ae.RetrieveAETs) == 0 {
		ae.RetrieveAETs = model.NewSet(title)
	}
	if s.ExternalRetrieveAET != "" {
		ext := s.ExternalRetrieveAET
		ae.ExternalRetrieveAET = &ext
	}
	if s.AttributeFilters != "" {
		if ae.Filters, err = attrfilter.LoadFile(s.AttributeFilters); err != nil {
			return nil, fmt.Errorf("attribute filters: %w", err)
		}
	} else {
		ae.Filters = attrfilter.Default()
	}
	return ae, nil
}

func applyEnv(f *File) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst **bool) error {
		v := strings.TrimSpace(os.Getenv(envPrefix + name))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = &b
		return nil
	}

	str("AE_TITLE", &f.AETitle)
	str("DB_PATH", &f.Database.Path)
	str("STORAGE_ROOT", &f.Storage.Root)
	str("STORAGE_ID", &f.Storage.ID)
	str("STORE_DUPLICATE", &f.Defaults.StoreDuplicate)
	str("DIGEST", &f.Defaults.Digest)
	str("PATH_FORMAT", &f.Defaults.PathFormat)
	str("ATTRIBUTE_FILTERS", &f.Defaults.AttributeFilters)
	if err := boolean("MATCH_UNKNOWN", &f.Defaults.MatchUnknown); err != nil {
		return err
	}
	if err := boolean("FUZZY_MATCHING", &f.Defaults.FuzzyMatching); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv(envPrefix + "DB_BUSY_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sDB_BUSY_TIMEOUT: %w", envPrefix, err)
		}
		f.Database.BusyTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv(envPrefix + "DB_MAX_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sDB_MAX_RETRIES: %w", envPrefix, err)
		}
		f.Database.MaxRetries = n
	}
	return nil
}

func deref(b *bool) bool {
	return b != nil && *b
}

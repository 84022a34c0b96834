package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultSlotMinutes = 45
	defaultHeaderRows  = 1
	defaultMaxRows     = 200
)

// AvailabilityLayout describes how availability grids are laid out per track.
type AvailabilityLayout struct {
	Tracks []TrackLayout `mapstructure:"tracks"`
}

// TrackLayout maps one booking track onto a spreadsheet.
type TrackLayout struct {
	Name          string          `mapstructure:"name"`
	SpreadsheetID string          `mapstructure:"spreadsheet_id"`
	KeyColumn     int             `mapstructure:"key_column"`
	NameColumn    int             `mapstructure:"name_column"`
	HeaderRows    int             `mapstructure:"header_rows"`
	MaxRows       int             `mapstructure:"max_rows"`
	SlotMinutes   int             `mapstructure:"slot_minutes"`
	Markers       []string        `mapstructure:"markers"`
	Buckets       []BucketColumn  `mapstructure:"buckets"`
	SkipBuckets   []string        `mapstructure:"skip_buckets"`
	Sections      []SectionLayout `mapstructure:"sections"`
	MatrixSheet   string          `mapstructure:"matrix_sheet"`
}

// BucketColumn binds a grid column to the start of a time bucket.
type BucketColumn struct {
	Column int    `mapstructure:"column"`
	Start  string `mapstructure:"start"`
}

// SectionLayout is one named sheet of the grid, tied to a date and the
// eligibility tags of the interviewers listed on it.
type SectionLayout struct {
	Name string   `mapstructure:"name"`
	Date string   `mapstructure:"date"`
	Tags []string `mapstructure:"tags"`
}

// LoadLayout reads the availability layout from a YAML file.
func LoadLayout(path string) (*AvailabilityLayout, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read availability layout: %w", err)
	}

	layout := &AvailabilityLayout{}
	if err := v.Unmarshal(layout); err != nil {
		return nil, fmt.Errorf("decode availability layout: %w", err)
	}
	if err := layout.normalise(); err != nil {
		return nil, err
	}
	return layout, nil
}

// Track returns the layout of the named track.
func (l *AvailabilityLayout) Track(name string) (TrackLayout, bool) {
	if l == nil {
		return TrackLayout{}, false
	}
	for _, t := range l.Tracks {
		if t.Name == name {
			return t, true
		}
	}
	return TrackLayout{}, false
}

// TrackNames lists configured tracks in file order.
func (l *AvailabilityLayout) TrackNames() []string {
	if l == nil {
		return nil
	}
	names := make([]string, 0, len(l.Tracks))
	for _, t := range l.Tracks {
		names = append(names, t.Name)
	}
	return names
}

func (l *AvailabilityLayout) normalise() error {
	seen := make(map[string]struct{}, len(l.Tracks))
	for i := range l.Tracks {
		t := &l.Tracks[i]
		if t.Name == "" {
			return fmt.Errorf("availability layout: track %d has no name", i)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("availability layout: duplicate track %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.SpreadsheetID == "" {
			return fmt.Errorf("availability layout: track %q has no spreadsheet_id", t.Name)
		}
		if len(t.Buckets) == 0 {
			return fmt.Errorf("availability layout: track %q has no buckets", t.Name)
		}
		if t.SlotMinutes <= 0 {
			t.SlotMinutes = defaultSlotMinutes
		}
		if t.HeaderRows < 0 {
			t.HeaderRows = 0
		} else if t.HeaderRows == 0 {
			t.HeaderRows = defaultHeaderRows
		}
		if t.MaxRows <= 0 {
			t.MaxRows = defaultMaxRows
		}
		if len(t.Markers) == 0 {
			t.Markers = []string{"1"}
		}
		for j := range t.Markers {
			t.Markers[j] = strings.ToLower(strings.TrimSpace(t.Markers[j]))
		}
		for _, b := range t.Buckets {
			if _, err := time.Parse("15:04", b.Start); err != nil {
				return fmt.Errorf("availability layout: track %q bucket %q: %w", t.Name, b.Start, err)
			}
		}
		for _, s := range t.Sections {
			if _, err := time.Parse("2006-01-02", s.Date); err != nil {
				return fmt.Errorf("availability layout: track %q section %q: %w", t.Name, s.Name, err)
			}
		}
	}
	return nil
}

// Package project reads and writes the per-directory settings file that
// travels with a dataset: REDCap credentials, the channel selection and the
// default picking windows.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wepp/internal/erp"
	"wepp/internal/fileutil"
	"wepp/internal/peaks"
	"wepp/internal/services"
)

// DefaultREDCapURL is the endpoint used when a dataset has none configured.
const DefaultREDCapURL = "https://poa-redcap.med.yale.edu/api/"

// Keys accepted by Set.
const (
	KeyREDCapURL        = "redcapURL"
	KeyREDCapToken      = "redcapToken"
	KeySelectedChannels = "selectedChannels"
	KeyDefaultWindows   = "defaultWindows"
)

// DefaultWindow is a window picked automatically on segments without picks.
type DefaultWindow struct {
	Polarity peaks.Polarity
	Window   peaks.Window
}

type wireWindow struct {
	Range [2]float64 `json:"range"`
	Type  string     `json:"type"`
}

func (w DefaultWindow) MarshalJSON() ([]byte, error) {
	typ := "pos"
	if w.Polarity == peaks.Negative {
		typ = "neg"
	}
	return json.Marshal(wireWindow{Range: [2]float64{w.Window.Start, w.Window.End}, Type: typ})
}

func (w *DefaultWindow) UnmarshalJSON(data []byte) error {
	var raw wireWindow
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pol, err := peaks.ParsePolarity(raw.Type)
	if err != nil {
		return err
	}
	*w = DefaultWindow{Polarity: pol, Window: peaks.Window{Start: raw.Range[0], End: raw.Range[1]}}
	return nil
}

// Settings is the content of the project file.
type Settings struct {
	REDCapURL        string          `json:"redcapURL"`
	REDCapToken      string          `json:"redcapToken"`
	SelectedChannels []bool          `json:"selectedChannels"`
	DefaultWindows   []DefaultWindow `json:"defaultWindows"`
}

// Default returns settings for a directory without a project file.
func Default() Settings {
	return Settings{
		REDCapURL:        DefaultREDCapURL,
		SelectedChannels: []bool{},
		DefaultWindows:   []DefaultWindow{},
	}
}

// Path returns the project file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, erp.ProjectFileName)
}

// Load reads the project file in dir. When the file does not exist the
// defaults are returned with found set to false.
func Load(dir string) (settings Settings, found bool, err error) {
	data, err := os.ReadFile(Path(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read project file: %w", err)
	}
	settings = Default()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, true, services.Wrap(services.ErrValidation, "project", "load", Path(dir), err)
	}
	return settings, true, nil
}

// Save writes the settings to the project file in dir.
func (s Settings) Save(dir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project file: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(Path(dir), data, 0o600); err != nil {
		return fmt.Errorf("write project file: %w", err)
	}
	return nil
}

// Set updates one setting from its textual form.
//
//	selectedChannels: comma separated flags, e.g. "1,0,1" or "true,false"
//	defaultWindows:   comma separated pol:start:end, e.g. "pos:100:200,neg:200:300",
//	                  or the JSON array stored in the file
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyREDCapURL:
		s.REDCapURL = value
	case KeyREDCapToken:
		s.REDCapToken = value
	case KeySelectedChannels:
		mask, err := parseMask(value)
		if err != nil {
			return services.Wrap(services.ErrValidation, "project", "set", key, err)
		}
		s.SelectedChannels = mask
	case KeyDefaultWindows:
		windows, err := ParseWindows(value)
		if err != nil {
			return services.Wrap(services.ErrValidation, "project", "set", key, err)
		}
		s.DefaultWindows = windows
	default:
		return services.Wrap(services.ErrValidation, "project", "set",
			fmt.Sprintf("unknown key %q (want %s, %s, %s or %s)", key,
				KeyREDCapURL, KeyREDCapToken, KeySelectedChannels, KeyDefaultWindows), nil)
	}
	return nil
}

// Selection returns the selected channel indexes for rec. A stored mask is
// used only when it covers every channel; otherwise the default selection
// applies and the mask is replaced so later recordings reuse it.
func (s *Settings) Selection(rec *erp.Recording) []int {
	if selected, ok := erp.SelectionFromMask(s.SelectedChannels, len(rec.Channels)); ok {
		return selected
	}
	selected := erp.DefaultSelection(rec.Channels)
	s.SelectedChannels = erp.Mask(selected, len(rec.Channels))
	return selected
}

func parseMask(value string) ([]bool, error) {
	if value == "" {
		return []bool{}, nil
	}
	parts := strings.Split(value, ",")
	mask := make([]bool, len(parts))
	for i, part := range parts {
		on, err := strconv.ParseBool(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("flag %d: %w", i, err)
		}
		mask[i] = on
	}
	return mask, nil
}

// ParseWindows reads "pol:start:end" items separated by commas, or the JSON
// array stored in the project file.
func ParseWindows(value string) ([]DefaultWindow, error) {
	if value == "" {
		return []DefaultWindow{}, nil
	}
	if strings.HasPrefix(value, "[") {
		var windows []DefaultWindow
		if err := json.Unmarshal([]byte(value), &windows); err != nil {
			return nil, err
		}
		return windows, validateWindows(windows)
	}
	var windows []DefaultWindow
	for _, item := range strings.Split(value, ",") {
		fields := strings.Split(strings.TrimSpace(item), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("window %q: want pol:start:end", item)
		}
		pol, err := peaks.ParsePolarity(fields[0])
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", item, err)
		}
		start, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("window %q start: %w", item, err)
		}
		end, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("window %q end: %w", item, err)
		}
		windows = append(windows, DefaultWindow{Polarity: pol, Window: peaks.Window{Start: start, End: end}})
	}
	return windows, validateWindows(windows)
}

func validateWindows(windows []DefaultWindow) error {
	for _, w := range windows {
		if w.Window.Start >= w.Window.End {
			return fmt.Errorf("window %s: start must be before end", w.Window)
		}
	}
	return nil
}

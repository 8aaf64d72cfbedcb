// Package features captures a camera's user-settable features into a
// FeatureSet and writes a set back to a camera. Sets persist as TOML or
// YAML files.
package features

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/smazurov/gigecam/pkg/genicam"
)

// Version is the file format version written by Save.
const Version = 1

// Value is one captured feature. Selector, when set, is the entry of
// Selects the value was read under, e.g. LineSelector=Line1.
type Value struct {
	Name     string `toml:"name" yaml:"name" json:"name"`
	Selects  string `toml:"selects,omitempty" yaml:"selects,omitempty" json:"selects,omitempty"`
	Selector string `toml:"selector,omitempty" yaml:"selector,omitempty" json:"selector,omitempty"`
	Value    string `toml:"value" yaml:"value" json:"value"`
}

// Key is the display form of v: Name or Name[Selects=Selector].
func (v Value) Key() string {
	if v.Selects == "" {
		return v.Name
	}
	return fmt.Sprintf("%s[%s=%s]", v.Name, v.Selects, v.Selector)
}

// Set is a saved camera configuration.
type Set struct {
	Version  int       `toml:"version" yaml:"version" json:"version"`
	Vendor   string    `toml:"vendor" yaml:"vendor" json:"vendor"`
	Model    string    `toml:"model" yaml:"model" json:"model"`
	Serial   string    `toml:"serial" yaml:"serial" json:"serial"`
	SavedAt  time.Time `toml:"saved_at" yaml:"saved_at" json:"saved_at"`
	Features []Value   `toml:"feature" yaml:"features" json:"features"`
}

// Spec names a feature to capture. A non-empty Selector makes the feature
// captured once per entry of that selector.
type Spec struct {
	Name     string
	Selector string
}

// Persistent lists the features saved by default, in apply order: image
// format before acquisition before triggers and lines.
var Persistent = []Spec{
	{Name: genicam.PixelFormat},
	{Name: genicam.Width},
	{Name: genicam.Height},
	{Name: genicam.OffsetX},
	{Name: genicam.OffsetY},
	{Name: genicam.ReverseX},
	{Name: genicam.ReverseY},
	{Name: genicam.AcquisitionMode},
	{Name: genicam.AcquisitionFrameCount},
	{Name: genicam.AcquisitionFrameRate},
	{Name: genicam.ExposureMode},
	{Name: genicam.ExposureTime},
	{Name: genicam.TriggerSource, Selector: genicam.TriggerSelector},
	{Name: genicam.TriggerMode, Selector: genicam.TriggerSelector},
	{Name: genicam.LineMode, Selector: genicam.LineSelector},
}

// Read returns the current value of a feature as text, probing its type.
func Read(dev genicam.Inquirer, name string) (string, genicam.Type, error) {
	typ, err := dev.FeatureType(name)
	if err != nil {
		return "", genicam.TypeUnknown, err
	}
	switch typ {
	case genicam.TypeInt:
		v, err := dev.Int(genicam.QueryValue, name)
		return strconv.FormatInt(v, 10), typ, err
	case genicam.TypeFloat:
		v, err := dev.Float(genicam.QueryValue, name)
		return strconv.FormatFloat(v, 'g', -1, 64), typ, err
	case genicam.TypeBool:
		v, err := dev.Bool(name)
		return strconv.FormatBool(v), typ, err
	case genicam.TypeCommand:
		return "", typ, &genicam.FeatureError{Op: "read", Feature: name, Err: genicam.ErrType}
	default:
		v, err := dev.String(name)
		return v, typ, err
	}
}

// Write parses value according to the feature's type and writes it.
// Commands are executed and value is ignored.
func Write(dev genicam.Device, name, value string) error {
	typ, err := dev.FeatureType(name)
	if err != nil {
		return err
	}
	switch typ {
	case genicam.TypeInt:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return &genicam.FeatureError{Op: "write", Feature: name, Err: fmt.Errorf("%w: %v", genicam.ErrType, err)}
		}
		return dev.SetInt(name, v)
	case genicam.TypeFloat:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &genicam.FeatureError{Op: "write", Feature: name, Err: fmt.Errorf("%w: %v", genicam.ErrType, err)}
		}
		return dev.SetFloat(name, v)
	case genicam.TypeBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return &genicam.FeatureError{Op: "write", Feature: name, Err: fmt.Errorf("%w: %v", genicam.ErrType, err)}
		}
		return dev.SetBool(name, v)
	case genicam.TypeCommand:
		return dev.Execute(name)
	default:
		return dev.SetString(name, value)
	}
}

// Capture reads specs from dev. Absent features are skipped; selectors are
// restored to their original entries afterwards.
func Capture(dev genicam.Device, specs []Spec, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := &Set{Version: Version, SavedAt: time.Now().UTC()}
	set.Vendor, _ = dev.String(genicam.DeviceVendorName)
	set.Model, _ = dev.String(genicam.DeviceModelName)
	set.Serial, _ = dev.String(genicam.DeviceID)

	var errs []error
	for _, spec := range specs {
		if spec.Selector == "" {
			v, _, err := Read(dev, spec.Name)
			if err != nil {
				errs = appendUnlessAbsent(errs, err, logger)
				continue
			}
			set.Features = append(set.Features, Value{Name: spec.Name, Value: v})
			continue
		}

		entries, err := dev.EnumEntries(spec.Selector)
		if err != nil {
			errs = appendUnlessAbsent(errs, err, logger)
			continue
		}
		original, _ := dev.String(spec.Selector)
		for _, entry := range entries {
			if err := dev.SetString(spec.Selector, entry); err != nil {
				errs = append(errs, err)
				continue
			}
			v, _, err := Read(dev, spec.Name)
			if err != nil {
				errs = appendUnlessAbsent(errs, err, logger)
				continue
			}
			set.Features = append(set.Features, Value{Name: spec.Name, Selects: spec.Selector, Selector: entry, Value: v})
		}
		if original != "" {
			_ = dev.SetString(spec.Selector, original)
		}
	}
	logger.Debug("Captured feature set", "features", len(set.Features), "errors", len(errs))
	return set, errors.Join(errs...)
}

func appendUnlessAbsent(errs []error, err error, logger *slog.Logger) []error {
	if errors.Is(err, genicam.ErrNotFound) {
		logger.Debug("Feature not present, skipped", "error", err)
		return errs
	}
	return append(errs, err)
}

// Apply writes every value of set to dev in order. It keeps going past
// failures and returns them joined together with the number applied.
func Apply(dev genicam.Device, set *Set, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	applied := 0
	for _, v := range set.Features {
		if v.Selects != "" {
			if err := dev.SetString(v.Selects, v.Selector); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", v.Key(), err))
				continue
			}
		}
		if err := Write(dev, v.Name, v.Value); err != nil {
			logger.Warn("Failed to apply feature", "feature", v.Key(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", v.Key(), err))
			continue
		}
		applied++
	}
	logger.Info("Applied feature set", "applied", applied, "failed", len(errs))
	return applied, errors.Join(errs...)
}

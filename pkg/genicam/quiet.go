package genicam

import "log/slog"

// Inspector reads features while suppressing errors. Missing or unreadable
// features yield zero values, which callers report as "N/A".
type Inspector struct {
	dev    Device
	logger *slog.Logger
}

// Quiet opens an error-suppressed window over dev. Suppressed errors are
// logged at debug level only.
func Quiet(dev Device, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{dev: dev, logger: logger}
}

func (p *Inspector) suppress(err error) {
	if err != nil {
		p.logger.Debug("Suppressed feature error", "error", err)
	}
}

// String returns the string value of name or "".
func (p *Inspector) String(name string) string {
	v, err := p.dev.String(name)
	p.suppress(err)
	if err != nil {
		return ""
	}
	return v
}

// Int returns the integer query of name or 0.
func (p *Inspector) Int(q Query, name string) int64 {
	v, err := p.dev.Int(q, name)
	p.suppress(err)
	if err != nil {
		return 0
	}
	return v
}

// IntOr returns the integer query of name or fallback when unavailable.
func (p *Inspector) IntOr(q Query, name string, fallback int64) int64 {
	v, err := p.dev.Int(q, name)
	p.suppress(err)
	if err != nil {
		return fallback
	}
	return v
}

// Float returns the float query of name or 0.
func (p *Inspector) Float(q Query, name string) float64 {
	v, err := p.dev.Float(q, name)
	p.suppress(err)
	if err != nil {
		return 0
	}
	return v
}

// Bool returns the boolean value of name or false.
func (p *Inspector) Bool(name string) bool {
	v, err := p.dev.Bool(name)
	p.suppress(err)
	return err == nil && v
}

// Entries returns the enumeration entries of name or nil.
func (p *Inspector) Entries(name string) []string {
	v, err := p.dev.EnumEntries(name)
	p.suppress(err)
	if err != nil {
		return nil
	}
	return v
}

// SetString writes value to name, ignoring failures.
func (p *Inspector) SetString(name, value string) {
	p.suppress(p.dev.SetString(name, value))
}

// SetInt writes value to name, ignoring failures.
func (p *Inspector) SetInt(name string, value int64) {
	p.suppress(p.dev.SetInt(name, value))
}

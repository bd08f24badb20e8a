package config

import (
	"fmt"
	"strings"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/spelling"
)

// InvalidKeyError tells which key made a Configuration invalid.
type InvalidKeyError struct {
	Section string
	Key     string
	Reason  string
	Hint    string
}

func (e *InvalidKeyError) Path() string {
	return e.Section + "." + e.Key
}

func (e *InvalidKeyError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", craberr.ErrConfig, e.Path(), e.Reason)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *InvalidKeyError) Unwrap() error {
	return craberr.ErrConfig
}

func invalid(section, key, format string, args ...any) *InvalidKeyError {
	return &InvalidKeyError{Section: section, Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the Configuration and freezes it on success.
//
// It stops at the first problem found and reports it as *InvalidKeyError
// (which wraps errors.ErrConfig). Checks go in this order:
//
//  1. each key set is declared, with a value of the declared type
//     (sections in declared order, keys in order of setting)
//  2. per-key validation, in the same order
//  3. required keys
//  4. mutually exclusive keys
func (c *Configuration) Validate() error {
	if c.frozen {
		return nil
	}

	for _, s := range c.sections {
		schema, _ := c.schema.Section(s.name)
		for _, key := range s.keys {
			p, ok := schema.Param(key)
			if !ok {
				err := invalid(s.name, key, "unknown parameter")
				if owner, ok := c.schema.Owner(key); ok {
					err.Hint = fmt.Sprintf("it belongs to section %s", owner)
				} else {
					err.Hint = spelling.Hint(key, schema.Keys())
				}
				return err
			}
			v, ok := normalize(p.Type, s.values[key])
			if !ok {
				return invalid(s.name, key, "should be %s, but %#v", p.Type, s.values[key])
			}
			s.values[key] = v
		}
	}

	for _, s := range c.sections {
		schema, _ := c.schema.Section(s.name)
		for _, key := range s.keys {
			p, _ := schema.Param(key)
			if p.Validate == nil {
				continue
			}
			if err := p.Validate(s.values[key]); err != nil {
				return invalid(s.name, key, "%s", err)
			}
		}
	}

	if err := c.checkRequired(); err != nil {
		return err
	}
	if err := c.checkExclusive(); err != nil {
		return err
	}

	c.frozen = true
	return nil
}

func (c *Configuration) plugin() string {
	return c.String("JobType", "pluginName")
}

func (c *Configuration) checkRequired() *InvalidKeyError {
	require := func(section, key, why string) *InvalidKeyError {
		if c.Has(section, key) {
			return nil
		}
		if why == "" {
			return invalid(section, key, "required")
		}
		return invalid(section, key, "required %s", why)
	}

	if err := require("General", "requestName", ""); err != nil {
		return err
	}
	if err := require("JobType", "pluginName", ""); err != nil {
		return err
	}

	switch c.plugin() {
	case PluginAnalysis:
		if err := require("JobType", "psetName", "for plugin "+PluginAnalysis); err != nil {
			return err
		}
		if !c.Has("Data", "inputDataset") && !c.Has("Data", "userInputFiles") {
			return invalid("Data", "inputDataset", "required for plugin %s unless Data.userInputFiles is set", PluginAnalysis)
		}
	case PluginPrivateMC:
		if splitting := c.String("Data", "splitting"); splitting != SplittingEventBased {
			return invalid("Data", "splitting", "should be %s for plugin %s, but %s", SplittingEventBased, PluginPrivateMC, splitting)
		}
		if err := require("Data", "unitsPerJob", "for plugin "+PluginPrivateMC); err != nil {
			return err
		}
		if err := require("Data", "totalUnits", "for plugin "+PluginPrivateMC); err != nil {
			return err
		}
	}

	if c.Bool("General", "transferOutputs") || c.Bool("General", "transferLogs") {
		if err := require("Site", "storageSite", "when outputs or logs are transferred"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Configuration) checkExclusive() *InvalidKeyError {
	if c.Has("Data", "inputDataset") && c.Has("Data", "userInputFiles") {
		return invalid("Data", "userInputFiles", "cannot be used with Data.inputDataset")
	}

	if c.plugin() == PluginPrivateMC && c.Has("Data", "lumiMask") {
		return invalid("Data", "lumiMask", "cannot be used with plugin %s", PluginPrivateMC)
	}

	if c.String("Data", "splitting") == SplittingAutomatic {
		if c.Has("Data", "totalUnits") {
			return invalid("Data", "totalUnits", "cannot be used with %s splitting", SplittingAutomatic)
		}
		if c.Has("Data", "unitsPerJob") {
			minutes := c.Int("Data", "unitsPerJob")
			if minutes < AutomaticMinMinutes || AutomaticMaxMinutes < minutes {
				return invalid(
					"Data", "unitsPerJob",
					"should be in [%d, %d] minutes with %s splitting, but %d",
					AutomaticMinMinutes, AutomaticMaxMinutes, SplittingAutomatic, minutes,
				)
			}
		}
	}

	for _, key := range []string{"whitelist", "blacklist"} {
		for _, site := range c.Strings("Site", key) {
			if strings.TrimSpace(site) == "" {
				return invalid("Site", key, "has an empty site name")
			}
		}
	}
	return nil
}

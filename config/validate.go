package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate ensures required fields are present and cross references hold.
func Validate(cfg AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return err
	}
	if _, err := cfg.Registry(); err != nil {
		return err
	}
	for i, r := range cfg.Sources {
		if _, ok := cfg.Instruments[r.Instrument]; !ok {
			return fmt.Errorf("sources[%d] instrument %s is not configured", i, r.Instrument)
		}
		if _, err := filepath.Match(r.Pattern, ""); err != nil {
			return fmt.Errorf("sources[%d] pattern %q: %w", i, r.Pattern, err)
		}
	}
	if cfg.Inbox.Dir != "" && len(cfg.Sources) == 0 {
		return errors.New("inbox.dir requires at least one sources route")
	}
	return nil
}

package scenario

import "fmt"

// ValidateScenario performs validation checks on a loaded scenario.
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if s.ConfigPath == "" {
		return fmt.Errorf("config_path is required")
	}

	if s.ExpectErrorClass != "" && len(s.Days) > 0 {
		return fmt.Errorf("expect_error_class and days are mutually exclusive")
	}
	if s.ExpectErrorClass == "" && len(s.Days) == 0 {
		return fmt.Errorf("scenario must set either expect_error_class or days")
	}

	for i, d := range s.Days {
		if d.Date == "" {
			return fmt.Errorf("day %d: date is required", i)
		}
		if d.DeltaApprox != nil && d.Tolerance < 0 {
			return fmt.Errorf("day %d: tolerance cannot be negative", i)
		}
	}

	return nil
}

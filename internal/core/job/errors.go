package job

import "errors"

// ConfigurationError wraps a failure no retry can fix, such as missing
// credentials or an unusable repository path. The queue fails these jobs
// immediately instead of burning retries.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

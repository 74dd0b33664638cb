package model

import "fmt"

// ConfigurationError reports drift between the record contract and what a
// source or record actually provides. It is fatal and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: field %q", e.Field)
	}
	return fmt.Sprintf("configuration error: field %q: %s", e.Field, e.Reason)
}

// DuplicateKeyError reports two records sharing one IdentityKey inside a
// single dataset.
type DuplicateKeyError struct {
	Key IdentityKey
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate record for %s", e.Key)
}

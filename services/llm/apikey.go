// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// APIKey holds a provider credential encrypted in memory.
//
// # Description
//
// The plaintext only exists inside a locked buffer for the duration of Use.
// A nil *APIKey is valid and empty.
//
// # Thread Safety
//
// Safe for concurrent use.
type APIKey struct {
	enclave *memguard.Enclave
}

// NewAPIKey seals key. An empty key yields nil.
func NewAPIKey(key string) *APIKey {
	if key == "" {
		return nil
	}
	return &APIKey{enclave: memguard.NewEnclave([]byte(key))}
}

// Empty reports whether no key is held.
func (k *APIKey) Empty() bool {
	return k == nil || k.enclave == nil
}

// Use opens the enclave, passes the plaintext to fn and destroys the
// buffer when fn returns.
func (k *APIKey) Use(fn func(key string) error) error {
	if k.Empty() {
		return ErrNotConfigured
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("open api key: %w", err)
	}
	defer buf.Destroy()
	return fn(string(buf.Bytes()))
}

// Redacted renders the key for display.
func (k *APIKey) Redacted() string {
	if k.Empty() {
		return ""
	}
	return "********"
}

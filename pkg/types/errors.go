// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Error kinds. Components wrap these with %w so callers can test with errors.Is.
var (
	// ErrConfiguration marks a malformed state file or missing required setting.
	ErrConfiguration = errors.New("configuration error")

	// ErrNetwork marks a transport or HTTP status failure on search, fetch, or SMTP.
	ErrNetwork = errors.New("network error")

	// ErrParse marks a malformed response document.
	ErrParse = errors.New("parse error")
)

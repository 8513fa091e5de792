// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// Link paths. The token is the last path segment.
const (
	VerifyEmailPath   = "/verify-email/"
	ReactivatePath    = "/reactivate/"
	PasswordResetPath = "/passwords/"
)

// Links builds absolute notification URLs under the public base URL.
type Links struct {
	base string
}

// NewLinks validates baseURL, which must be an absolute http(s) URL.
func NewLinks(baseURL string) (Links, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return Links{}, oops.Code("WEB_INVALID_BASE_URL").With("base_url", baseURL).Wrap(err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Links{}, oops.Code("WEB_INVALID_BASE_URL").
			With("base_url", baseURL).
			Errorf("base URL must be an absolute http or https URL")
	}
	return Links{base: strings.TrimRight(baseURL, "/")}, nil
}

// VerifyEmailURL implements auth.Links.
func (l Links) VerifyEmailURL(token string) string { return l.build(VerifyEmailPath, token) }

// ReactivateURL implements auth.Links.
func (l Links) ReactivateURL(token string) string { return l.build(ReactivatePath, token) }

// PasswordResetURL implements auth.Links.
func (l Links) PasswordResetURL(token string) string { return l.build(PasswordResetPath, token) }

func (l Links) build(path, token string) string {
	return l.base + path + url.PathEscape(token)
}

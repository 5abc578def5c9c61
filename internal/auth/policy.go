package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/model"
)

// ResolvePath combines a credential's allowed prefix with a client-supplied
// relative path and returns the canonical storage path. The subpath is
// percent-decoded exactly once and then re-validated, so encoded and
// double-encoded traversal sequences never survive normalization.
//
// An empty subpath is valid and resolves to the prefix itself.
func ResolvePath(cred model.Credential, subpath string) (string, error) {
	decoded, err := url.PathUnescape(subpath)
	if err != nil {
		return "", apperr.New(apperr.CodeInvalidPath, "malformed percent-encoding in path")
	}

	if strings.ContainsRune(decoded, '\x00') {
		return "", apperr.New(apperr.CodeInvalidPath, "path contains a null byte")
	}

	// Anything still percent-encoded after the single decode is a smuggling
	// attempt (%2e, %2f, %5c and friends), not a legitimate file name.
	lower := strings.ToLower(decoded)
	if strings.Contains(lower, "%2e") || strings.Contains(lower, "%2f") || strings.Contains(lower, "%5c") {
		return "", apperr.New(apperr.CodePathForbidden, "path escapes the allowed prefix")
	}

	if strings.ContainsRune(decoded, '\\') {
		return "", apperr.New(apperr.CodePathForbidden, "path escapes the allowed prefix")
	}

	if strings.HasPrefix(decoded, "/") {
		return "", apperr.New(apperr.CodePathForbidden, "absolute paths are not allowed")
	}

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(decoded, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", apperr.New(apperr.CodePathForbidden, "path escapes the allowed prefix")
		default:
			segments = append(segments, seg)
		}
	}

	canonical := cred.Prefix
	if len(segments) > 0 {
		canonical = cred.Prefix + "/" + strings.Join(segments, "/")
	}

	if canonical != cred.Prefix && !strings.HasPrefix(canonical, cred.Prefix+"/") {
		return "", apperr.New(apperr.CodePathForbidden, "path escapes the allowed prefix")
	}

	return canonical, nil
}

// CanAccess reports whether a stored canonical path falls under the
// credential's allowed prefix. The check is boundary-aware: prefix "user1"
// does not cover "user10/...".
func CanAccess(cred model.Credential, storedPath string) bool {
	return storedPath == cred.Prefix || strings.HasPrefix(storedPath, cred.Prefix+"/")
}

// normalizePrefix trims surrounding slashes and rejects prefixes that are
// empty or contain traversal or reserved characters.
func normalizePrefix(prefix string) (string, error) {
	p := strings.Trim(prefix, "/")
	if p == "" {
		return "", fmt.Errorf("empty path prefix")
	}

	if p == model.VariantCacheRoot || strings.HasPrefix(p, model.VariantCacheRoot+"/") {
		return "", fmt.Errorf("path prefix %q is reserved", prefix)
	}

	for _, seg := range strings.Split(p, "/") {
		switch {
		case seg == "" || seg == "." || seg == "..":
			return "", fmt.Errorf("invalid path prefix %q", prefix)
		case strings.ContainsAny(seg, "\\%"):
			return "", fmt.Errorf("invalid path prefix %q", prefix)
		}
	}

	return p, nil
}

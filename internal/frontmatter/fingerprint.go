package frontmatter

import (
	"strings"

	"github.com/inful/mdfp"
)

// FingerprintField is the front matter key holding the content fingerprint.
const FingerprintField = mdfp.FingerprintField

// Fingerprint computes the content fingerprint of fields and body. The
// fingerprint field itself is excluded. Fields are canonicalized as YAML with
// LF newlines and a single trailing newline trimmed, whatever the output
// format, so switching formats does not change the value.
func Fingerprint(fields Fields, body []byte) (string, error) {
	forHash := fields.Without(FingerprintField)

	serialized := ""
	if len(forHash) > 0 {
		out, err := SerializeYAML(forHash, Style{Newline: "\n"})
		if err != nil {
			return "", err
		}
		serialized = strings.TrimSuffix(string(out), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(serialized, string(body)), nil
}

// WithFingerprint returns fields with the fingerprint field set (appended at
// the end when absent) and the computed value.
func WithFingerprint(fields Fields, body []byte) (Fields, string, error) {
	fp, err := Fingerprint(fields, body)
	if err != nil {
		return nil, "", err
	}
	return fields.Set(FingerprintField, fp), fp, nil
}

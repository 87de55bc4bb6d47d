package frontmatter

import (
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

// Fingerprint computes the content fingerprint of a parsed document. An
// existing fingerprint field is excluded so that stamping a document with its
// own fingerprint does not change it.
func Fingerprint(fields map[string]any, body []byte) (string, error) {
	hashed := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == mdfp.FingerprintField {
			continue
		}
		hashed[k] = v
	}

	fm := ""
	if len(hashed) > 0 {
		out, err := yaml.Marshal(hashed)
		if err != nil {
			return "", err
		}
		fm = strings.TrimSuffix(string(out), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(fm, string(body)), nil
}

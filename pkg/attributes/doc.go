// Package attributes holds the attribute bags that describe a device fingerprint.
//
// Fingerprints arrive from the client as arbitrary JSON objects (browser, OS, screen
// geometry, plugins, timezone, IP). Rather than decoding them into map[string]interface{},
// they are parsed into a small tagged value type so that validation is explicit:
//
//	m, err := attributes.ParseString(`{"userAgent":"Mozilla/5.0","screen":{"width":1920}}`)
//	if errors.Is(err, attributes.ErrMalformed) {
//		// reject input
//	}
//
// Map preserves key order for display and storage. Digest gives a stable hash that is
// independent of key order, used to detect an identical fingerprint being saved twice.
package attributes

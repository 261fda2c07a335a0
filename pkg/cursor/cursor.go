// Package cursor decodes opaque pagination tokens issued by marketplace
// list endpoints.
//
// Tokens come in two shapes: a query-string fragment of key=value pairs
// joined by "&" (possibly with a leading "?"), which must be decomposed
// back into request parameters, or a single cursor value that is forwarded
// verbatim. This package handles the first shape; verbatim cursors need no
// decoding.
package cursor

import "strings"

// Decode splits an opaque page token into request parameters.
//
// The token is split on "&", a leading "?" is stripped from each segment,
// and each segment is split on "=". Segments that do not contain exactly
// one "=" are silently dropped; some endpoints emit trailing fragments
// that are not well-formed pairs, and a garbage token must yield an empty
// parameter set rather than fail the pipeline. A token is only valid as
// input to the request immediately following the response that issued it.
func Decode(token string) map[string]string {
	params := make(map[string]string)

	for _, segment := range strings.Split(token, "&") {
		segment = strings.TrimPrefix(segment, "?")
		parts := strings.Split(segment, "=")
		if len(parts) != 2 {
			continue
		}
		params[parts[0]] = parts[1]
	}

	return params
}

// Package qr renders proof references as scannable QR code URLs.
package qr

import "net/url"

const (
	endpoint = "https://api.qrserver.com/v1/create-qr-code/"
	size     = "200x200"
)

// PresentationURI returns a QR image URL encoding the given proof
// reference at a fixed size. Pure transform; malformed input is escaped,
// never rejected.
func PresentationURI(reference string) string {
	return endpoint + "?size=" + size + "&data=" + url.QueryEscape(reference)
}

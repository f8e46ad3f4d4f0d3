// Package directory implements the user directory client.
//
// A fetch loads tsundere.properties, records the configured client identity,
// sends one GET with the X-Passphrase header and decodes the {"users": [...]}
// body. Fetch reports failures as typed errors; FetchUsers keeps the older
// contract of logging them and returning an empty list.
package directory

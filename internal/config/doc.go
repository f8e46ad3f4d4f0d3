// Package config loads and saves the client settings file.
//
// The file uses Java properties syntax and lives in the working directory
// as tsundere.properties unless another path is given. It carries the
// directory endpoint, the shared passphrase and the client display name.
package config

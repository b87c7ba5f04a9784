// Package config resolves the emulator's ambient configuration: attestation
// key material paths, wrap key path, and device path. Values are layered
// from an optional YAML file, then environment variables, then command-line
// flags, with later layers overriding earlier ones.
package config

// Package registry tracks SSH-verified site sessions in memory, either
// opened through /ssh/login or pre-seeded from a YAML inventory file.
package registry

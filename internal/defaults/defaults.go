// Package defaults provides the embedded example files written by the
// spinach init subcommand.
package defaults

import _ "embed"

//go:generate cp ../../examples/config.example.yaml .

// ConfigYAML is the example configuration file.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// EnvExample lists the secrets config.yaml expects from the environment.
//
//go:embed env.example
var EnvExample []byte

// Package configs provides the embedded configuration template for ragcore.
//
// The template is embedded at build time with //go:embed so it ships
// inside the binary regardless of how it was installed. No ragcore CLI
// verb writes it to disk.
package configs

import _ "embed"

// ProjectConfigTemplate is the text of the example ragcore.yaml. It
// documents every field NewConfig sets a default for.
//
//go:embed ragcore.example.yaml
var ProjectConfigTemplate string

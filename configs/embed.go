// Package configs provides the embedded configuration template shipped
// with markstash. Embedding it at build time keeps 'markstash config init'
// working for source builds and binary releases alike.
package configs

import _ "embed"

// ConfigTemplate is the annotated user configuration template written by
// 'markstash config init' to ~/.config/markstash/config.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string

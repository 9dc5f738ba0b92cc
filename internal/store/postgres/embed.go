package postgres

import _ "embed"

//go:embed sql/schema.sql
var EmbeddedSchema string

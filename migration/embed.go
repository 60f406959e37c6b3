package migrations

import "embed"

// FS holds the migration sources so goose can find them without a checkout.
//
//go:embed *.go
var FS embed.FS

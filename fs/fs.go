// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations templates templates/email/_base.txt templates/email/_base.gohtml
var FS embed.FS

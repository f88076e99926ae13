//go:build tools

package zkmem

// Keeps the lint tool version pinned in go.mod.
import (
	_ "github.com/mgechev/revive"
)

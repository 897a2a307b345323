package sqlite

import "github.com/pathwaylabs/pathway/internal/domain"

// Ensure SQLite stores implement the storage interfaces.
var (
	_ domain.RunStore   = (*RunStore)(nil)
	_ domain.ChatStore  = (*ChatStore)(nil)
	_ domain.HintStore  = (*HintStore)(nil)
	_ domain.TimerStore = (*TimerStore)(nil)
	_ domain.TokenStore = (*TokenStore)(nil)
)

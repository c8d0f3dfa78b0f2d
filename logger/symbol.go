package logger

import (
	"go.uber.org/zap"

	"github.com/teranos/dataloader/sym"
)

// Symbol-aware logging helpers.
// The symbol goes in a structured field, never in the message, so logs stay
// queryable by lifecycle stage.

// AddSymbol returns l tagged with the given symbol
func AddSymbol(l *zap.SugaredLogger, symbol string) *zap.SugaredLogger {
	return l.With(FieldSymbol, symbol)
}

// ForState tags l with the symbol of a lifecycle state (DRAFT, PUBLISHED, DEPLOYED)
func ForState(l *zap.SugaredLogger, state string) *zap.SugaredLogger {
	if s := sym.ForState(state); s != "" {
		return AddSymbol(l, s)
	}
	return l
}

package strategy

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/types"
)

// Signal asks the engine to open a bracket trade priced off ReferenceBar.
type Signal struct {
	Symbol       string
	Direction    types.Direction
	ReferenceBar types.Bar
	Time         time.Time
}

// Strategy detects setups. It sees every bar once, in order, and never places orders itself.
type Strategy interface {
	Name() string
	OnBar(bar types.Bar) optional.Option[Signal]
}

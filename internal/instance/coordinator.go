package instance

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
)

// Coordinator drives the startup transition Unclaimed -> Primary | Secondary.
type Coordinator struct {
	Options Options
	// Primary builds and runs the full application and registers its
	// activation handler through claim.Listen. A secondary never calls it.
	Primary func(ctx context.Context, claim *Claim) error
}

// Run claims the instance. A secondary forwards sig and returns; a primary
// runs c.Primary to completion. The claim is released on every return path.
func (c *Coordinator) Run(ctx context.Context, sig Signal) (Role, error) {
	claim, err := Acquire(c.Options)
	if err != nil {
		return Unclaimed, err
	}
	defer claim.Close()

	if claim.Role() == Secondary {
		log.Info().Str("op", "instance/coordinator").Str("name", claim.Name()).Msg("Another launcher is running, handing over")
		return Secondary, claim.Notify(ctx, sig)
	}
	if c.Primary == nil {
		return Primary, nil
	}
	return Primary, c.Primary(ctx, claim)
}

// CurrentSignal describes this process launch.
func CurrentSignal() Signal {
	cwd, _ := os.Getwd()
	return Signal{Argv: append([]string(nil), os.Args...), Cwd: cwd}
}
